package types

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Pubkey 为 32 字节的不透明标识（池地址、代币 mint、管理员身份）。零值视为无效。
type Pubkey = common.Hash

// ParsePubkey 将十六进制字符串解析为 Pubkey。
func ParsePubkey(s string) Pubkey {
	return common.HexToHash(s)
}

// IsZero 判断标识是否为默认零值。
func IsZero(key Pubkey) bool {
	return key == (Pubkey{})
}

const (
	// MaxSlippageBps 为滑点上限（基点）。
	MaxSlippageBps uint16 = 10000
	// MinRiskThreshold 与 MaxRiskThreshold 界定风险阈值取值范围。
	MinRiskThreshold uint8 = 1
	MaxRiskThreshold uint8 = 10
)

// Params 为可由管理员调整的运行参数。
type Params struct {
	MaxTradeAmount uint64 `json:"max_trade_amount"`
	MinLiquidity   uint64 `json:"min_liquidity"`
	MaxSlippage    uint16 `json:"max_slippage"`   // 基点，500 = 5%
	RiskThreshold  uint8  `json:"risk_threshold"` // 1-10
}

// Validate 校验参数是否满足配置不变量。
func (p Params) Validate() error {
	if p.MaxSlippage > MaxSlippageBps {
		return InvalidConfiguration("max_slippage %d 超过 %d", p.MaxSlippage, MaxSlippageBps)
	}
	if p.RiskThreshold < MinRiskThreshold || p.RiskThreshold > MaxRiskThreshold {
		return InvalidConfiguration("risk_threshold %d 必须位于[%d,%d]", p.RiskThreshold, MinRiskThreshold, MaxRiskThreshold)
	}
	return nil
}

// BotState 为全局唯一的配置与统计记录。
type BotState struct {
	Authority        Pubkey    `json:"authority"`
	Params           Params    `json:"params"`
	IsPaused         bool      `json:"is_paused"`
	TotalTrades      uint64    `json:"total_trades"`
	SuccessfulTrades uint64    `json:"successful_trades"`
	InitializedAt    time.Time `json:"initialized_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Signal 描述一次待授权的交易信号，构造后不可修改。
type Signal struct {
	Pool           Pubkey `json:"pool"`
	Token          Pubkey `json:"token"`
	TargetToken    Pubkey `json:"target_token"`
	RiskScore      uint8  `json:"risk_score"`
	Liquidity      uint64 `json:"liquidity"`
	TradeAmount    uint64 `json:"trade_amount"`
	ExpectedOutput uint64 `json:"expected_output"`
	AutoExecute    bool   `json:"auto_execute"`
}

// Settlement 为交易所返回的成交结果。
type Settlement struct {
	OrderID   string `json:"order_id"`
	AmountIn  uint64 `json:"amount_in"`
	AmountOut uint64 `json:"amount_out"`
	Confirmed bool   `json:"confirmed"`
}

// Decision 为一次信号处理的决策记录。
type Decision struct {
	ID           uuid.UUID   `json:"id"`
	Pool         Pubkey      `json:"pool"`
	Token        Pubkey      `json:"token"`
	TargetToken  Pubkey      `json:"target_token"`
	RiskScore    uint8       `json:"risk_score"`
	TradeAmount  uint64      `json:"trade_amount"`
	MinAmountOut uint64      `json:"min_amount_out,omitempty"`
	Executed     bool        `json:"executed"`
	Settlement   *Settlement `json:"settlement,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

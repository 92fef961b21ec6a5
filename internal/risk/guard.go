package risk

import (
	"trade-gate/internal/types"
)

// Guard 对信号执行单项校验，失败时返回具体拒绝原因。
type Guard struct {
	Name  string
	Check func(signal types.Signal, state types.BotState) error
}

// Pipeline 按顺序执行校验，遇到首个失败即中止。
type Pipeline []Guard

// DefaultPipeline 返回固定顺序的校验链，顺序决定拒绝原因，不可调整。
func DefaultPipeline() Pipeline {
	return Pipeline{
		{Name: "paused", Check: checkPaused},
		{Name: "pool_address", Check: checkPoolAddress},
		{Name: "risk_score", Check: checkRiskScore},
		{Name: "liquidity", Check: checkLiquidity},
		{Name: "trade_amount", Check: checkTradeAmount},
		{Name: "token_safety", Check: checkTokenSafety},
	}
}

// Evaluate 使用默认校验链评估信号。
func Evaluate(signal types.Signal, state types.BotState) error {
	return DefaultPipeline().Evaluate(signal, state)
}

// Evaluate 依次执行校验链。
func (p Pipeline) Evaluate(signal types.Signal, state types.BotState) error {
	for _, g := range p {
		if g.Check == nil {
			continue
		}
		if err := g.Check(signal, state); err != nil {
			return err
		}
	}
	return nil
}

func checkPaused(_ types.Signal, state types.BotState) error {
	if state.IsPaused {
		return types.ErrBotPaused
	}
	return nil
}

func checkPoolAddress(signal types.Signal, _ types.BotState) error {
	if types.IsZero(signal.Pool) {
		return types.ErrInvalidPoolAddress
	}
	return nil
}

// checkRiskScore 分数越高代表越安全：低于阈值即拒绝。
func checkRiskScore(signal types.Signal, state types.BotState) error {
	if signal.RiskScore < state.Params.RiskThreshold {
		return types.ErrRiskScoreTooLow
	}
	return nil
}

func checkLiquidity(signal types.Signal, state types.BotState) error {
	if signal.Liquidity < state.Params.MinLiquidity {
		return types.ErrInsufficientLiquidity
	}
	return nil
}

func checkTradeAmount(signal types.Signal, state types.BotState) error {
	if signal.TradeAmount > state.Params.MaxTradeAmount {
		return types.ErrExceedsMaxTradeAmount
	}
	return nil
}

// checkTokenSafety 目前仅校验 mint 非空；黑名单、蜜罐等检测不在此实现。
func checkTokenSafety(signal types.Signal, _ types.BotState) error {
	if types.IsZero(signal.Token) {
		return types.ErrInvalidTokenMint
	}
	return nil
}

package execution

import (
	"context"

	"trade-gate/internal/types"
)

// Exchange 为外部兑换执行方，负责真实成交。
type Exchange interface {
	Swap(ctx context.Context, req SwapRequest) (types.Settlement, error)
}

// SwapRequest 描述一次兑换。
type SwapRequest struct {
	TokenIn      types.Pubkey
	TokenOut     types.Pubkey
	AmountIn     uint64
	MinAmountOut uint64
}

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Route 将代币对映射到交易所市场。
type Route struct {
	TokenIn     types.Pubkey
	TokenOut    types.Pubkey
	Symbol      string
	Side        OrderSide
	InDecimals  uint8
	OutDecimals uint8
}

// OrderRequest 抽象具体委托。
type OrderRequest struct {
	Type   string // market | limit
	Side   OrderSide
	Amount float64
	Price  float64
	Params map[string]interface{}
}

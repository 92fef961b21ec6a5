package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade-gate/internal/config"
	"trade-gate/internal/exchange"
	"trade-gate/internal/types"
)

var _ Exchange = (*Executor)(nil)

type routeKey struct {
	in, out types.Pubkey
}

// Executor 通过 ccxt 在中心化交易所完成兑换。
type Executor struct {
	client exchange.OrderClient
	routes map[routeKey]Route
	retry  config.RetryConfig
	logger *zap.Logger
}

// NewExecutor 创建执行器。
func NewExecutor(client exchange.OrderClient, routes []Route, retry config.RetryConfig, logger *zap.Logger) (*Executor, error) {
	if client == nil {
		return nil, errors.New("execution: client 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	table := make(map[routeKey]Route, len(routes))
	for _, r := range routes {
		if r.Side != OrderSideBuy && r.Side != OrderSideSell {
			return nil, fmt.Errorf("execution: 路由 %s 方向无效 %q", r.Symbol, r.Side)
		}
		table[routeKey{r.TokenIn, r.TokenOut}] = r
	}

	return &Executor{
		client: client,
		routes: table,
		retry:  retry,
		logger: logger,
	}, nil
}

// RoutesFromConfig 将配置中的路由转换为 Route。
func RoutesFromConfig(cfgs []config.RouteConfig) []Route {
	routes := make([]Route, 0, len(cfgs))
	for _, c := range cfgs {
		routes = append(routes, Route{
			TokenIn:     types.ParsePubkey(c.TokenIn),
			TokenOut:    types.ParsePubkey(c.TokenOut),
			Symbol:      c.Symbol,
			Side:        OrderSide(strings.ToLower(c.Side)),
			InDecimals:  c.InDecimals,
			OutDecimals: c.OutDecimals,
		})
	}
	return routes
}

// Swap 提交订单并将成交结果换算为最小单位。
// 每次兑换生成一个 clientOrderId，重试沿用同一 ID，交易所据此拒绝重复订单。
func (e *Executor) Swap(ctx context.Context, req SwapRequest) (types.Settlement, error) {
	route, ok := e.routes[routeKey{req.TokenIn, req.TokenOut}]
	if !ok {
		return types.Settlement{}, fmt.Errorf("execution: 未配置 %s -> %s 的交易路由", req.TokenIn.Hex(), req.TokenOut.Hex())
	}

	clientOrderID := newClientOrderID()
	order, err := buildOrderRequest(route, req, clientOrderID)
	if err != nil {
		return types.Settlement{}, err
	}

	var placed ccxt.Order
	err = exchange.Retry(ctx, e.retry, e.logger, "swap_"+route.Symbol, func() error {
		result, submitErr := e.submitOrder(route.Symbol, order)
		if ctx.Err() != nil {
			// 调用方已放弃等待，成交结果只能通过日志对账
			e.logger.Error("订单在超时后返回，需人工对账",
				zap.String("symbol", route.Symbol),
				zap.String("client_order_id", clientOrderID),
				zap.String("order_id", deref(result.Id)),
				zap.String("status", deref(result.Status)),
				zap.Error(submitErr),
			)
		}
		if submitErr != nil {
			return submitErr
		}
		placed = result
		return nil
	})
	if err != nil {
		return types.Settlement{}, fmt.Errorf("execution: 下单失败 client_order_id=%s: %w", clientOrderID, err)
	}

	settlement := toSettlement(route, req, placed)
	if settlement.OrderID == "" {
		settlement.OrderID = clientOrderID
	}

	e.logger.Info("兑换订单已提交",
		zap.String("symbol", route.Symbol),
		zap.String("side", string(route.Side)),
		zap.String("order_id", settlement.OrderID),
		zap.String("client_order_id", clientOrderID),
		zap.Uint64("amount_in", req.AmountIn),
		zap.Uint64("amount_out", settlement.AmountOut),
		zap.Uint64("min_amount_out", req.MinAmountOut),
	)

	if settlement.AmountOut < req.MinAmountOut {
		return settlement, fmt.Errorf("execution: 成交 %d 低于最小产出 %d: %w",
			settlement.AmountOut, req.MinAmountOut, types.ErrSlippageExceeded)
	}

	return settlement, nil
}

// newClientOrderID 生成不含连字符的 32 位 ID，满足各交易所的长度与字符限制。
func newClientOrderID() string {
	return "tg" + strings.ReplaceAll(uuid.NewString(), "-", "")[:30]
}

func (e *Executor) submitOrder(symbol string, order OrderRequest) (ccxt.Order, error) {
	switch order.Type {
	case "market":
		var opts []ccxt.CreateMarketOrderOptions
		if len(order.Params) > 0 {
			opts = append(opts, ccxt.WithCreateMarketOrderParams(order.Params))
		}
		return e.client.CreateMarketOrder(symbol, string(order.Side), order.Amount, opts...)
	case "limit":
		var opts []ccxt.CreateLimitOrderOptions
		if len(order.Params) > 0 {
			opts = append(opts, ccxt.WithCreateLimitOrderParams(order.Params))
		}
		return e.client.CreateLimitOrder(symbol, string(order.Side), order.Amount, order.Price, opts...)
	default:
		return ccxt.Order{}, fmt.Errorf("execution: 不支持的订单类型 %s", order.Type)
	}
}

// buildOrderRequest 在有最小产出要求时使用 IOC 限价单，使交易所按价格上限拒绝超出滑点的成交。
func buildOrderRequest(route Route, req SwapRequest, clientOrderID string) (OrderRequest, error) {
	if req.AmountIn == 0 {
		return OrderRequest{}, errors.New("execution: 兑换数量必须大于0")
	}

	amountIn := fromUnits(req.AmountIn, route.InDecimals)
	minOut := fromUnits(req.MinAmountOut, route.OutDecimals)

	if req.MinAmountOut == 0 {
		order := OrderRequest{
			Type:   "market",
			Side:   route.Side,
			Amount: amountIn,
			Params: map[string]interface{}{"clientOrderId": clientOrderID},
		}
		if route.Side == OrderSideBuy {
			// 买入时 amount 表示花费的计价币数量
			order.Params["createMarketBuyOrderRequiresPrice"] = false
		}
		return order, nil
	}

	params := map[string]interface{}{"timeInForce": "IOC", "clientOrderId": clientOrderID}
	switch route.Side {
	case OrderSideSell:
		// 卖出 amountIn 基础币，至少换回 minOut 计价币
		return OrderRequest{
			Type:   "limit",
			Side:   OrderSideSell,
			Amount: amountIn,
			Price:  minOut / amountIn,
			Params: params,
		}, nil
	case OrderSideBuy:
		// 花费不超过 amountIn 计价币，买入 minOut 基础币
		return OrderRequest{
			Type:   "limit",
			Side:   OrderSideBuy,
			Amount: minOut,
			Price:  amountIn / minOut,
			Params: params,
		}, nil
	default:
		return OrderRequest{}, fmt.Errorf("execution: 不支持的下单方向 %s", route.Side)
	}
}

func toSettlement(route Route, req SwapRequest, order ccxt.Order) types.Settlement {
	var out float64
	if route.Side == OrderSideSell {
		out = deref(order.Cost)
	} else {
		out = deref(order.Filled)
	}

	settlement := types.Settlement{
		AmountIn:  req.AmountIn,
		AmountOut: toUnits(out, route.OutDecimals),
	}
	if order.Id != nil {
		settlement.OrderID = *order.Id
	}
	if order.Status != nil {
		settlement.Confirmed = strings.EqualFold(*order.Status, "closed")
	}
	return settlement
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func fromUnits(v uint64, decimals uint8) float64 {
	return float64(v) / math.Pow10(int(decimals))
}

func toUnits(v float64, decimals uint8) uint64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	scaled := math.Floor(v*math.Pow10(int(decimals)) + 1e-9)
	if scaled >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(scaled)
}

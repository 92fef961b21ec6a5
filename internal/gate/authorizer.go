package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"trade-gate/internal/execution"
	"trade-gate/internal/metrics"
	"trade-gate/internal/monitor"
	"trade-gate/internal/risk"
	"trade-gate/internal/state"
	"trade-gate/internal/trace"
	"trade-gate/internal/types"
)

const defaultSwapTimeout = 15 * time.Second

// Options 控制授权器行为。
type Options struct {
	SwapTimeout time.Duration
	Pipeline    risk.Pipeline
}

// Authorizer 对交易信号执行风控、滑点计算与兑换。
type Authorizer struct {
	store     *state.Store
	exchange  execution.Exchange
	publisher monitor.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewAuthorizer 创建授权器。
func NewAuthorizer(store *state.Store, ex execution.Exchange, publisher monitor.Publisher, m *metrics.Metrics, opts Options, logger *zap.Logger) (*Authorizer, error) {
	if store == nil {
		return nil, errors.New("gate: store 不能为空")
	}
	if ex == nil {
		return nil, errors.New("gate: exchange 不能为空")
	}
	if publisher == nil {
		publisher = monitor.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SwapTimeout <= 0 {
		opts.SwapTimeout = defaultSwapTimeout
	}
	if opts.Pipeline == nil {
		opts.Pipeline = risk.DefaultPipeline()
	}

	return &Authorizer{
		store:     store,
		exchange:  ex,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// ProcessSignal 在单个事务中评估信号；AutoExecute 时提交兑换，成功后累加 TotalTrades。
// 拒绝原因与交易所错误原样返回，失败时状态不做任何修改。
func (a *Authorizer) ProcessSignal(ctx context.Context, signal types.Signal) (types.Decision, error) {
	ctx, span := trace.StartSpan(ctx, "gate.ProcessSignal",
		attribute.String("pool", signal.Pool.Hex()),
		attribute.String("token", signal.Token.Hex()),
		attribute.Int("risk_score", int(signal.RiskScore)),
		attribute.Bool("auto_execute", signal.AutoExecute),
	)

	var decision types.Decision
	st, err := a.store.Update(ctx, func(st *types.BotState) error {
		if err := a.opts.Pipeline.Evaluate(signal, *st); err != nil {
			return err
		}

		decision = types.Decision{
			ID:          uuid.New(),
			Pool:        signal.Pool,
			Token:       signal.Token,
			TargetToken: signal.TargetToken,
			RiskScore:   signal.RiskScore,
			TradeAmount: signal.TradeAmount,
		}

		if !signal.AutoExecute {
			return nil
		}

		minOut, err := risk.MinAmountOut(signal.ExpectedOutput, st.Params.MaxSlippage)
		if err != nil {
			return err
		}
		decision.MinAmountOut = minOut

		settlement, err := a.swap(ctx, execution.SwapRequest{
			TokenIn:      signal.Token,
			TokenOut:     signal.TargetToken,
			AmountIn:     signal.TradeAmount,
			MinAmountOut: minOut,
		})
		if err != nil {
			return err
		}

		st.TotalTrades++
		decision.Executed = true
		decision.Settlement = &settlement
		return nil
	})
	trace.End(span, err)

	if err != nil {
		a.observeFailure(signal, err)
		return types.Decision{}, err
	}

	decision.Timestamp = a.now()
	a.observeSuccess(decision, st)

	if pubErr := a.publisher.Publish(ctx, types.NewSignalProcessedEvent(decision)); pubErr != nil {
		a.logger.Warn("发布信号事件失败", zap.String("decision_id", decision.ID.String()), zap.Error(pubErr))
	}

	return decision, nil
}

func (a *Authorizer) swap(ctx context.Context, req execution.SwapRequest) (types.Settlement, error) {
	swapCtx, cancel := context.WithTimeout(ctx, a.opts.SwapTimeout)
	defer cancel()

	swapCtx, span := trace.StartSpan(swapCtx, "gate.Swap", swapAttributes(req)...)

	start := time.Now()
	settlement, err := a.exchange.Swap(swapCtx, req)
	if a.metrics != nil {
		a.metrics.SwapLatency.Observe(time.Since(start).Seconds())
	}
	if err == nil {
		if ctxErr := swapCtx.Err(); ctxErr != nil {
			// 超时后才返回的成交不计入统计，保留订单号供对账
			a.logger.Error("兑换在超时后成交，未计入统计，需人工对账",
				zap.String("order_id", settlement.OrderID),
				zap.String("token_in", req.TokenIn.Hex()),
				zap.String("token_out", req.TokenOut.Hex()),
				zap.Uint64("amount_in", settlement.AmountIn),
				zap.Uint64("amount_out", settlement.AmountOut),
				zap.Bool("confirmed", settlement.Confirmed),
			)
			err = fmt.Errorf("order %s filled after deadline: %w", settlement.OrderID, ctxErr)
		}
	}
	trace.End(span, err)

	if err != nil {
		a.countSwap("error")
		if errors.Is(err, types.ErrSlippageExceeded) {
			return settlement, err
		}
		return settlement, fmt.Errorf("gate: 兑换失败: %w", types.ExchangeError(err))
	}

	a.countSwap("ok")
	return settlement, nil
}

func swapAttributes(req execution.SwapRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("token_in", req.TokenIn.Hex()),
		attribute.String("token_out", req.TokenOut.Hex()),
		attribute.String("amount_in", strconv.FormatUint(req.AmountIn, 10)),
		attribute.String("min_amount_out", strconv.FormatUint(req.MinAmountOut, 10)),
	}
}

func (a *Authorizer) observeSuccess(decision types.Decision, st types.BotState) {
	outcome := "accepted"
	if decision.Executed {
		outcome = "executed"
	}
	if a.metrics != nil {
		a.metrics.Signals.WithLabelValues(outcome).Inc()
		a.metrics.ObserveState(st.IsPaused, st.TotalTrades, st.SuccessfulTrades)
	}

	a.logger.Info("信号已处理",
		zap.String("decision_id", decision.ID.String()),
		zap.String("pool", decision.Pool.Hex()),
		zap.String("token", decision.Token.Hex()),
		zap.Uint8("risk_score", decision.RiskScore),
		zap.Uint64("trade_amount", decision.TradeAmount),
		zap.Bool("executed", decision.Executed),
		zap.Uint64("total_trades", st.TotalTrades),
	)
}

func (a *Authorizer) observeFailure(signal types.Signal, err error) {
	outcome := rejectionLabel(err)
	if a.metrics != nil {
		a.metrics.Signals.WithLabelValues(outcome).Inc()
	}

	fields := []zap.Field{
		zap.String("pool", signal.Pool.Hex()),
		zap.String("token", signal.Token.Hex()),
		zap.Uint8("risk_score", signal.RiskScore),
		zap.Uint64("trade_amount", signal.TradeAmount),
		zap.String("reason", outcome),
		zap.Error(err),
	}
	if types.IsRejection(err) {
		a.logger.Info("信号被拒绝", fields...)
		return
	}
	a.logger.Error("信号处理失败", fields...)
}

func (a *Authorizer) countSwap(result string) {
	if a.metrics != nil {
		a.metrics.Swaps.WithLabelValues(result).Inc()
	}
}

func rejectionLabel(err error) string {
	switch {
	case errors.Is(err, types.ErrBotPaused):
		return "bot_paused"
	case errors.Is(err, types.ErrInvalidPoolAddress):
		return "invalid_pool_address"
	case errors.Is(err, types.ErrRiskScoreTooLow):
		return "risk_score_too_low"
	case errors.Is(err, types.ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, types.ErrExceedsMaxTradeAmount):
		return "exceeds_max_trade_amount"
	case errors.Is(err, types.ErrInvalidTokenMint):
		return "invalid_token_mint"
	case errors.Is(err, types.ErrSlippageExceeded):
		return "slippage_exceeded"
	case errors.Is(err, types.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, types.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, types.ErrExchange):
		return "exchange_error"
	default:
		return "error"
	}
}

package control

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-gate/internal/metrics"
	"trade-gate/internal/monitor"
	"trade-gate/internal/state"
	"trade-gate/internal/types"
)

// Plane 提供需要管理员权限的控制操作。
type Plane struct {
	store     *state.Store
	policy    AuthorizationPolicy
	publisher monitor.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewPlane 创建控制面。policy 为空时使用 AuthorityPolicy。
func NewPlane(store *state.Store, policy AuthorizationPolicy, publisher monitor.Publisher, m *metrics.Metrics, logger *zap.Logger) (*Plane, error) {
	if store == nil {
		return nil, fmt.Errorf("control: store 不能为空")
	}
	if policy == nil {
		policy = AuthorityPolicy{}
	}
	if publisher == nil {
		publisher = monitor.Discard{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Plane{
		store:     store,
		policy:    policy,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Initialize 创建状态记录，调用方成为 authority。无需授权。
func (p *Plane) Initialize(ctx context.Context, caller types.Pubkey, params types.Params) (types.BotState, error) {
	st, err := p.store.Initialize(ctx, caller, params)
	p.observe("initialize", st, err)
	if err != nil {
		return types.BotState{}, err
	}
	p.logger.Info("交易机器人已初始化",
		zap.String("authority", caller.Hex()),
		zap.Uint64("max_trade_amount", params.MaxTradeAmount),
		zap.Uint64("min_liquidity", params.MinLiquidity),
		zap.Uint16("max_slippage", params.MaxSlippage),
		zap.Uint8("risk_threshold", params.RiskThreshold),
	)
	return st, nil
}

// Pause 紧急暂停所有交易授权，并发布 EmergencyPause 事件。
func (p *Plane) Pause(ctx context.Context, caller types.Pubkey) (types.BotState, error) {
	st, err := p.store.Update(ctx, func(st *types.BotState) error {
		if err := p.policy.Authorize(caller, *st); err != nil {
			return err
		}
		st.IsPaused = true
		return nil
	})
	p.observe("pause", st, err)
	if err != nil {
		p.logDenied("pause", caller, err)
		return st, err
	}

	p.logger.Warn("交易已紧急暂停", zap.String("authority", caller.Hex()))
	p.publish(ctx, types.NewEmergencyPauseEvent(caller, p.now()))
	return st, nil
}

// Resume 恢复交易，重复调用无副作用。
func (p *Plane) Resume(ctx context.Context, caller types.Pubkey) (types.BotState, error) {
	st, err := p.store.Update(ctx, func(st *types.BotState) error {
		if err := p.policy.Authorize(caller, *st); err != nil {
			return err
		}
		st.IsPaused = false
		return nil
	})
	p.observe("resume", st, err)
	if err != nil {
		p.logDenied("resume", caller, err)
		return st, err
	}

	p.logger.Info("交易已恢复", zap.String("authority", caller.Hex()))
	return st, nil
}

// Reconfigure 覆盖四项运行参数，不改变 authority、暂停状态与计数。
func (p *Plane) Reconfigure(ctx context.Context, caller types.Pubkey, params types.Params) (types.BotState, error) {
	st, err := p.store.Update(ctx, func(st *types.BotState) error {
		if err := p.policy.Authorize(caller, *st); err != nil {
			return err
		}
		if err := params.Validate(); err != nil {
			return err
		}
		st.Params = params
		return nil
	})
	p.observe("reconfigure", st, err)
	if err != nil {
		p.logDenied("reconfigure", caller, err)
		return st, err
	}

	p.logger.Info("运行参数已更新",
		zap.Uint64("max_trade_amount", params.MaxTradeAmount),
		zap.Uint64("min_liquidity", params.MinLiquidity),
		zap.Uint16("max_slippage", params.MaxSlippage),
		zap.Uint8("risk_threshold", params.RiskThreshold),
	)
	return st, nil
}

// RecordSuccess 在确认成交后累加成功交易数。
func (p *Plane) RecordSuccess(ctx context.Context, caller types.Pubkey) (types.BotState, error) {
	st, err := p.store.Update(ctx, func(st *types.BotState) error {
		if err := p.policy.Authorize(caller, *st); err != nil {
			return err
		}
		if st.SuccessfulTrades >= st.TotalTrades {
			return types.ErrNoPendingSettlement
		}
		st.SuccessfulTrades++
		return nil
	})
	p.observe("record_success", st, err)
	if err != nil {
		p.logDenied("record_success", caller, err)
		return st, err
	}

	p.logger.Info("成交已确认",
		zap.Uint64("successful_trades", st.SuccessfulTrades),
		zap.Uint64("total_trades", st.TotalTrades),
	)
	return st, nil
}

func (p *Plane) publish(ctx context.Context, event types.Event) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("发布控制事件失败", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func (p *Plane) observe(op string, st types.BotState, err error) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	p.metrics.ControlCalls.WithLabelValues(op, result).Inc()
	if err == nil {
		p.metrics.ObserveState(st.IsPaused, st.TotalTrades, st.SuccessfulTrades)
	}
}

func (p *Plane) logDenied(op string, caller types.Pubkey, err error) {
	p.logger.Warn("控制操作被拒绝",
		zap.String("operation", op),
		zap.String("caller", caller.Hex()),
		zap.Error(err),
	)
}

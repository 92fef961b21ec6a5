package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade-gate/internal/config"
	"trade-gate/internal/control"
	"trade-gate/internal/exchange"
	"trade-gate/internal/execution"
	"trade-gate/internal/gate"
	"trade-gate/internal/metrics"
	"trade-gate/internal/monitor"
	"trade-gate/internal/state"
	"trade-gate/internal/store"
	"trade-gate/internal/trace"
	"trade-gate/internal/types"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	registry   *prometheus.Registry
	state      *state.Store
	events     *monitor.Service
	authorizer *gate.Authorizer
	control    *control.Plane
	callers    callerRegistry
	closers    []io.Closer
}

// New 创建 App 实例并完成依赖装配。
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *store.Store) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    db,
		registry: prometheus.NewRegistry(),
		callers:  newCallerRegistry(cfg.Gate),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	if err := trace.Init(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("初始化 tracing 失败: %w", err)
	}

	repo, err := store.NewStateRepository(db)
	if err != nil {
		return nil, err
	}
	a.state, err = state.Open(ctx, repo, logger)
	if err != nil {
		return nil, err
	}

	a.events, err = monitor.NewService(db, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化事件服务失败: %w", err)
	}

	publishers := monitor.Multi{a.events, monitor.LogPublisher{Logger: logger.Named("events")}}
	if cfg.Redis.Enabled {
		redisPub := monitor.NewRedisPublisher(cfg.Redis)
		a.closers = append(a.closers, redisPub)
		publishers = append(publishers, redisPub)
	}

	ex, err := newExchange(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.authorizer, err = gate.NewAuthorizer(a.state, ex, publishers, m, gate.Options{
		SwapTimeout: cfg.Execution.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化授权器失败: %w", err)
	}

	a.control, err = control.NewPlane(a.state, control.AuthorityPolicy{}, publishers, m, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化控制面失败: %w", err)
	}

	if err := a.bootstrap(ctx); err != nil {
		return nil, err
	}

	if st, snapErr := a.state.Snapshot(ctx); snapErr == nil {
		m.ObserveState(st.IsPaused, st.TotalTrades, st.SuccessfulTrades)
	}

	return a, nil
}

func newExchange(cfg *config.Config, logger *zap.Logger) (execution.Exchange, error) {
	if cfg.Execution.Simulation {
		logger.Info("执行器处于模拟模式")
		return execution.NewSimulatedExecutor(logger), nil
	}

	client, err := exchange.NewOrderClient(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("初始化交易客户端失败: %w", err)
	}
	ex, err := execution.NewExecutor(client, execution.RoutesFromConfig(cfg.Exchange.Routes), cfg.Exchange.Retry, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化执行器失败: %w", err)
	}
	return ex, nil
}

// bootstrap 在存储为空且启用 gate.bootstrap 时以配置中的 authority 初始化状态。
func (a *App) bootstrap(ctx context.Context) error {
	if !a.cfg.Gate.Bootstrap {
		return nil
	}

	params := types.Params{
		MaxTradeAmount: a.cfg.Gate.MaxTradeAmount,
		MinLiquidity:   a.cfg.Gate.MinLiquidity,
		MaxSlippage:    a.cfg.Gate.MaxSlippage,
		RiskThreshold:  a.cfg.Gate.RiskThreshold,
	}
	_, err := a.control.Initialize(ctx, types.ParsePubkey(a.cfg.Gate.Authority), params)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, types.ErrAlreadyInitialized):
		a.logger.Info("状态已存在，跳过初始化")
		return nil
	default:
		return fmt.Errorf("初始化机器人状态失败: %w", err)
	}
}

// Run 启动 HTTP 接口与指标服务，阻塞直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.logger.Info("交易授权服务已启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("addr", a.cfg.Server.Addr),
		zap.Bool("simulation", a.cfg.Execution.Simulation),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return serveHTTP(groupCtx, &http.Server{
			Addr:    a.cfg.Server.Addr,
			Handler: a.Handler(),
		}, a.cfg.Server.ShutdownTimeout, a.logger)
	})

	group.Go(func() error {
		return metrics.Serve(groupCtx, a.cfg.Metrics.Addr, a.registry, a.logger)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("服务异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("关闭资源失败", zap.Error(err))
		}
	}
	if err := trace.Shutdown(context.Background()); err != nil {
		a.logger.Warn("关闭 tracer 失败", zap.Error(err))
	}
}

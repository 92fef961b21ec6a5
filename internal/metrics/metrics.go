package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics 汇总授权引擎的 Prometheus 指标。
type Metrics struct {
	Signals      *prometheus.CounterVec
	Swaps        *prometheus.CounterVec
	SwapLatency  prometheus.Histogram
	Paused       prometheus.Gauge
	TotalTrades  prometheus.Gauge
	Successful   prometheus.Gauge
	ControlCalls *prometheus.CounterVec
}

// New 创建指标并注册到 reg；reg 为空时使用独立注册表。
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_signals_total",
			Help: "Processed signals by outcome (accepted, executed or rejection reason)",
		}, []string{"outcome"}),
		Swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_swaps_total",
			Help: "Exchange swap attempts by result",
		}, []string{"result"}),
		SwapLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gate_swap_latency_seconds",
			Help:    "Time spent waiting for the exchange executor",
			Buckets: prometheus.DefBuckets,
		}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_paused",
			Help: "1 when trade authorization is paused",
		}),
		TotalTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_total_trades",
			Help: "Trades submitted to the exchange executor",
		}),
		Successful: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gate_successful_trades",
			Help: "Trades confirmed as settled",
		}),
		ControlCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_control_calls_total",
			Help: "Control plane calls by operation and result",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(
		m.Signals,
		m.Swaps,
		m.SwapLatency,
		m.Paused,
		m.TotalTrades,
		m.Successful,
		m.ControlCalls,
	)
	return m
}

// ObserveState 同步状态类指标。
func (m *Metrics) ObserveState(paused bool, total, successful uint64) {
	if m == nil {
		return
	}
	if paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
	m.TotalTrades.Set(float64(total))
	m.Successful.Set(float64(successful))
}

// Serve 启动指标与健康检查 HTTP 服务，阻塞直到 ctx 结束。addr 为空时直接返回。
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if addr == "" {
		log.Info("metrics disabled: empty addr")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var h http.Handler
	if gatherer != nil {
		h = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		})
	} else {
		h = promhttp.Handler()
	}
	mux.Handle("/metrics", h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown error", zap.Error(err))
		}
	}()

	log.Info("metrics server starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	log.Info("metrics server stopped")
	return nil
}

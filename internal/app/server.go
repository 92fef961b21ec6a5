package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trade-gate/internal/types"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

// Handler 返回对外 HTTP 接口。调用方身份由 Bearer 令牌确定。
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /initialize", a.handleInitialize)
	mux.HandleFunc("POST /signals", a.handleSignal)
	mux.HandleFunc("POST /pause", a.handlePause)
	mux.HandleFunc("POST /resume", a.handleResume)
	mux.HandleFunc("PUT /config", a.handleReconfigure)
	mux.HandleFunc("POST /trades/confirm", a.handleConfirm)
	mux.HandleFunc("GET /state", a.handleState)
	mux.HandleFunc("GET /events", a.handleEvents)
	mux.HandleFunc("GET /healthz", a.handleHealth)
	return mux
}

func (a *App) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var params types.Params
	if !a.decode(w, r, &params) {
		return
	}
	st, err := a.control.Initialize(r.Context(), a.callerOf(r), params)
	a.respond(w, http.StatusCreated, st, err)
}

func (a *App) handleSignal(w http.ResponseWriter, r *http.Request) {
	var signal types.Signal
	if !a.decode(w, r, &signal) {
		return
	}
	decision, err := a.authorizer.ProcessSignal(r.Context(), signal)
	a.respond(w, http.StatusOK, decision, err)
}

func (a *App) handlePause(w http.ResponseWriter, r *http.Request) {
	st, err := a.control.Pause(r.Context(), a.callerOf(r))
	a.respond(w, http.StatusOK, st, err)
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	st, err := a.control.Resume(r.Context(), a.callerOf(r))
	a.respond(w, http.StatusOK, st, err)
}

func (a *App) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	var params types.Params
	if !a.decode(w, r, &params) {
		return
	}
	st, err := a.control.Reconfigure(r.Context(), a.callerOf(r), params)
	a.respond(w, http.StatusOK, st, err)
}

func (a *App) handleConfirm(w http.ResponseWriter, r *http.Request) {
	st, err := a.control.RecordSuccess(r.Context(), a.callerOf(r))
	a.respond(w, http.StatusOK, st, err)
}

func (a *App) handleState(w http.ResponseWriter, r *http.Request) {
	st, err := a.state.Snapshot(r.Context())
	a.respond(w, http.StatusOK, st, err)
}

func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEventLimit
	if qs := q.Get("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			limit = min(v, maxEventLimit)
		}
	}

	eventType := types.EventType(strings.ToLower(strings.TrimSpace(q.Get("type"))))
	events, err := a.events.ListEvents(r.Context(), eventType, limit)
	a.respond(w, http.StatusOK, events, err)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		a.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) callerOf(r *http.Request) types.Pubkey {
	return a.callers.resolve(r)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "请求体解析失败: " + err.Error()})
		return false
	}
	return true
}

func (a *App) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		a.writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
		return
	}
	a.writeJSON(w, status, body)
}

func (a *App) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Warn("写入响应失败", zap.Error(err))
	}
}

func statusFor(err error) int {
	switch {
	case types.IsRejection(err), errors.Is(err, types.ErrSlippageExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrUnauthorizedAccess):
		return http.StatusForbidden
	case errors.Is(err, types.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrAlreadyInitialized),
		errors.Is(err, types.ErrNotInitialized),
		errors.Is(err, types.ErrNoPendingSettlement):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, types.ErrExchange):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// serveHTTP 阻塞运行 srv，ctx 结束后在 timeout 内优雅关闭。
func serveHTTP(ctx context.Context, srv *http.Server, timeout time.Duration, logger *zap.Logger) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP 接口已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("关闭 HTTP 接口失败", zap.Error(err))
		return err
	}
	return nil
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade-gate/internal/config"
	"trade-gate/internal/monitor"
	"trade-gate/internal/store"
	"trade-gate/internal/types"
)

var (
	testAuthority = types.ParsePubkey("0xa11ce")
	testStranger  = types.ParsePubkey("0xbad")
)

const (
	authorityToken = "authority-token"
	strangerToken  = "stranger-token"
)

func newTestApp(t *testing.T, bootstrap bool) *App {
	t.Helper()

	db, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		App: config.AppConfig{Environment: "test"},
		Gate: config.GateConfig{
			Bootstrap:      bootstrap,
			Authority:      testAuthority.Hex(),
			MaxTradeAmount: 1_000,
			MinLiquidity:   100,
			MaxSlippage:    500,
			RiskThreshold:  5,
			AuthorityToken: authorityToken,
			Callers: []config.CallerConfig{
				{Name: "stranger", Token: strangerToken, Pubkey: testStranger.Hex()},
			},
		},
		Execution: config.ExecutionConfig{Timeout: time.Second, Simulation: true},
	}

	a, err := New(context.Background(), cfg, nil, db)
	require.NoError(t, err)
	return a
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func validSignal() types.Signal {
	return types.Signal{
		Pool:           types.ParsePubkey("0x01"),
		Token:          types.ParsePubkey("0x02"),
		TargetToken:    types.ParsePubkey("0x03"),
		RiskScore:      7,
		Liquidity:      500,
		TradeAmount:    400,
		ExpectedOutput: 2_000,
		AutoExecute:    true,
	}
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) types.BotState {
	t.Helper()
	var st types.BotState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestBootstrapInitializesFromConfig(t *testing.T) {
	a := newTestApp(t, true)

	rec := doRequest(t, a.Handler(), http.MethodGet, "/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	assert.Equal(t, testAuthority, st.Authority)
	assert.Equal(t, uint16(500), st.Params.MaxSlippage)
	assert.False(t, st.IsPaused)

	rec = doRequest(t, a.Handler(), http.MethodPost, "/initialize", strangerToken, types.Params{MaxSlippage: 100, RiskThreshold: 3})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInitializeOverHTTP(t *testing.T) {
	a := newTestApp(t, false)
	h := a.Handler()

	rec := doRequest(t, h, http.MethodGet, "/state", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/initialize", authorityToken, types.Params{MaxSlippage: 20_000, RiskThreshold: 3})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/initialize", authorityToken, types.Params{
		MaxTradeAmount: 10, MinLiquidity: 1, MaxSlippage: 100, RiskThreshold: 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, testAuthority, st.Authority)
	assert.Zero(t, st.TotalTrades)
}

func TestSignalLifecycle(t *testing.T) {
	a := newTestApp(t, true)
	h := a.Handler()

	rec := doRequest(t, h, http.MethodPost, "/signals", "", validSignal())
	require.Equal(t, http.StatusOK, rec.Code)

	var decision types.Decision
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&decision))
	assert.True(t, decision.Executed)
	assert.Equal(t, uint64(1_900), decision.MinAmountOut)
	require.NotNil(t, decision.Settlement)
	assert.Equal(t, uint64(400), decision.Settlement.AmountIn)

	st := decodeState(t, doRequest(t, h, http.MethodGet, "/state", "", nil))
	assert.Equal(t, uint64(1), st.TotalTrades)
	assert.Zero(t, st.SuccessfulTrades)

	rec = doRequest(t, h, http.MethodPost, "/trades/confirm", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/trades/confirm", authorityToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), decodeState(t, rec).SuccessfulTrades)

	rec = doRequest(t, h, http.MethodPost, "/trades/confirm", authorityToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignalRejections(t *testing.T) {
	a := newTestApp(t, true)
	h := a.Handler()

	lowRisk := validSignal()
	lowRisk.RiskScore = 2
	rec := doRequest(t, h, http.MethodPost, "/signals", "", lowRisk)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), types.ErrRiskScoreTooLow.Error())

	tooLarge := validSignal()
	tooLarge.TradeAmount = 1_001
	rec = doRequest(t, h, http.MethodPost, "/signals", "", tooLarge)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/signals", bytes.NewBufferString(`{"pool": 1`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	st := decodeState(t, doRequest(t, h, http.MethodGet, "/state", "", nil))
	assert.Zero(t, st.TotalTrades)
}

func TestPauseResumeAndEvents(t *testing.T) {
	a := newTestApp(t, true)
	h := a.Handler()

	rec := doRequest(t, h, http.MethodPost, "/pause", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/pause", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/pause", authorityToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeState(t, rec).IsPaused)

	rec = doRequest(t, h, http.MethodPost, "/signals", "", validSignal())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), types.ErrBotPaused.Error())

	rec = doRequest(t, h, http.MethodGet, "/events?type=EMERGENCY_PAUSE", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []monitor.StoredEvent
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventEmergencyPause, events[0].Type)
	assert.Contains(t, string(events[0].Payload), testAuthority.Hex())

	rec = doRequest(t, h, http.MethodPost, "/resume", authorityToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeState(t, rec).IsPaused)

	rec = doRequest(t, h, http.MethodPost, "/signals", "", validSignal())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/events?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, types.EventSignalProcessed, events[0].Type)
}

func TestForgedIdentityIsRejected(t *testing.T) {
	a := newTestApp(t, true)
	h := a.Handler()

	st := decodeState(t, doRequest(t, h, http.MethodGet, "/state", "", nil))
	require.Equal(t, testAuthority, st.Authority)

	// 从公开状态中读取 authority 并自称为 authority
	for _, forge := range []func(*http.Request){
		func(r *http.Request) { r.Header.Set("X-Caller", st.Authority.Hex()) },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+st.Authority.Hex()) },
		func(r *http.Request) { r.Header.Set("Authorization", authorityToken) },
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
	} {
		req := httptest.NewRequest(http.MethodPost, "/pause", nil)
		forge(req)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), types.ErrUnauthorizedAccess.Error())
	}

	raised := types.Params{MaxTradeAmount: ^uint64(0), MinLiquidity: 0, MaxSlippage: 10_000, RiskThreshold: 1}
	req := httptest.NewRequest(http.MethodPut, "/config", bytes.NewReader(mustJSON(t, raised)))
	req.Header.Set("X-Caller", st.Authority.Hex())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	after := decodeState(t, doRequest(t, h, http.MethodGet, "/state", "", nil))
	assert.False(t, after.IsPaused)
	assert.Equal(t, st.Params, after.Params)
}

func TestBearerSchemeIsCaseInsensitive(t *testing.T) {
	a := newTestApp(t, true)

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	req.Header.Set("Authorization", "bearer "+authorityToken)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestReconfigure(t *testing.T) {
	a := newTestApp(t, true)
	h := a.Handler()

	params := types.Params{MaxTradeAmount: 50, MinLiquidity: 10, MaxSlippage: 100, RiskThreshold: 9}

	rec := doRequest(t, h, http.MethodPut, "/config", strangerToken, params)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	invalid := params
	invalid.RiskThreshold = 11
	rec = doRequest(t, h, http.MethodPut, "/config", authorityToken, invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPut, "/config", authorityToken, params)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeState(t, rec)
	assert.Equal(t, params, st.Params)
	assert.Equal(t, testAuthority, st.Authority)
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t, false)
	rec := doRequest(t, a.Handler(), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{types.ErrBotPaused, http.StatusUnprocessableEntity},
		{types.ErrSlippageExceeded, http.StatusUnprocessableEntity},
		{types.ErrUnauthorizedAccess, http.StatusForbidden},
		{types.InvalidConfiguration("bad"), http.StatusBadRequest},
		{types.ErrAlreadyInitialized, http.StatusConflict},
		{types.ErrNoPendingSettlement, http.StatusConflict},
		{types.ExchangeError(errors.New("down")), http.StatusBadGateway},
		{types.ExchangeError(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v", tc.err), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestServeHTTPStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, &http.Server{Addr: addr, Handler: http.NotFoundHandler()}, time.Second, zap.NewNop())
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}
}

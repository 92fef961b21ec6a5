package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gate/internal/types"
)

func baseState() types.BotState {
	return types.BotState{
		Authority: types.ParsePubkey("0xa1"),
		Params: types.Params{
			MaxTradeAmount: 1000,
			MinLiquidity:   500,
			MaxSlippage:    300,
			RiskThreshold:  5,
		},
	}
}

func baseSignal() types.Signal {
	return types.Signal{
		Pool:           types.ParsePubkey("0xb1"),
		Token:          types.ParsePubkey("0xc1"),
		TargetToken:    types.ParsePubkey("0xd1"),
		RiskScore:      7,
		Liquidity:      600,
		TradeAmount:    400,
		ExpectedOutput: 1000,
	}
}

func TestEvaluate_AcceptsValidSignal(t *testing.T) {
	require.NoError(t, Evaluate(baseSignal(), baseState()))
}

func TestEvaluate_RejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *types.Signal, st *types.BotState)
		want   error
	}{
		{"paused", func(_ *types.Signal, st *types.BotState) { st.IsPaused = true }, types.ErrBotPaused},
		{"zero pool", func(s *types.Signal, _ *types.BotState) { s.Pool = types.Pubkey{} }, types.ErrInvalidPoolAddress},
		{"risk below threshold", func(s *types.Signal, _ *types.BotState) { s.RiskScore = 3 }, types.ErrRiskScoreTooLow},
		{"low liquidity", func(s *types.Signal, _ *types.BotState) { s.Liquidity = 499 }, types.ErrInsufficientLiquidity},
		{"amount over max", func(s *types.Signal, _ *types.BotState) { s.TradeAmount = 1001 }, types.ErrExceedsMaxTradeAmount},
		{"zero token mint", func(s *types.Signal, _ *types.BotState) { s.Token = types.Pubkey{} }, types.ErrInvalidTokenMint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal, state := baseSignal(), baseState()
			tt.mutate(&signal, &state)

			err := Evaluate(signal, state)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, types.IsRejection(err))
		})
	}
}

func TestEvaluate_BoundariesAreInclusive(t *testing.T) {
	signal, state := baseSignal(), baseState()
	signal.RiskScore = state.Params.RiskThreshold
	signal.Liquidity = state.Params.MinLiquidity
	signal.TradeAmount = state.Params.MaxTradeAmount

	assert.NoError(t, Evaluate(signal, state))
}

func TestEvaluate_PausedWinsOverEverything(t *testing.T) {
	state := baseState()
	state.IsPaused = true

	signals := []types.Signal{
		baseSignal(),
		{},
		{Pool: types.ParsePubkey("0x1"), RiskScore: 0, Liquidity: 0, TradeAmount: ^uint64(0)},
	}
	for _, s := range signals {
		assert.ErrorIs(t, Evaluate(s, state), types.ErrBotPaused)
	}
}

func TestEvaluate_EarlierGuardWins(t *testing.T) {
	signal, state := baseSignal(), baseState()
	signal.Liquidity = 10
	signal.TradeAmount = 5000

	err := Evaluate(signal, state)
	assert.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	assert.NotErrorIs(t, err, types.ErrExceedsMaxTradeAmount)

	signal.Pool = types.Pubkey{}
	signal.Token = types.Pubkey{}
	assert.ErrorIs(t, Evaluate(signal, state), types.ErrInvalidPoolAddress)
}

func TestPipeline_CustomOrderAndNilGuards(t *testing.T) {
	calls := make([]string, 0, 2)
	p := Pipeline{
		{Name: "first", Check: func(types.Signal, types.BotState) error { calls = append(calls, "first"); return nil }},
		{Name: "skipped"},
		{Name: "second", Check: func(types.Signal, types.BotState) error { calls = append(calls, "second"); return types.ErrBotPaused }},
		{Name: "never", Check: func(types.Signal, types.BotState) error { calls = append(calls, "never"); return nil }},
	}

	assert.ErrorIs(t, p.Evaluate(types.Signal{}, types.BotState{}), types.ErrBotPaused)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDefaultPipeline_Order(t *testing.T) {
	names := make([]string, 0, 6)
	for _, g := range DefaultPipeline() {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"paused", "pool_address", "risk_score", "liquidity", "trade_amount", "token_safety"}, names)
}

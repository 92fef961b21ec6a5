package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gate/internal/types"
)

func TestMinAmountOut(t *testing.T) {
	got, err := MinAmountOut(1000, 300)
	require.NoError(t, err)
	assert.Equal(t, uint64(970), got)

	got, err = MinAmountOut(999, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(998), got, "truncates toward zero")

	got, err = MinAmountOut(12345, 10000)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestMinAmountOut_ZeroSlippageIsIdentity(t *testing.T) {
	for _, expected := range []uint64{0, 1, 970, 1 << 40, math.MaxUint64} {
		got, err := MinAmountOut(expected, 0)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}

func TestMinAmountOut_MonotonicInSlippage(t *testing.T) {
	for _, expected := range []uint64{1, 997, 1_000_000, math.MaxUint64} {
		prev, err := MinAmountOut(expected, 0)
		require.NoError(t, err)
		for bps := uint16(1); bps <= types.MaxSlippageBps; bps += 37 {
			cur, err := MinAmountOut(expected, bps)
			require.NoError(t, err)
			assert.LessOrEqual(t, cur, prev, "expected=%d bps=%d", expected, bps)
			prev = cur
		}
	}
}

func TestMinAmountOut_LargeExpectedDoesNotOverflow(t *testing.T) {
	got, err := MinAmountOut(math.MaxUint64, 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64/2), got)
}

func TestMinAmountOut_RejectsOutOfRangeSlippage(t *testing.T) {
	_, err := MinAmountOut(1000, 10001)
	assert.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

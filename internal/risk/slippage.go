package risk

import (
	"github.com/holiman/uint256"

	"trade-gate/internal/types"
)

var bpsDenominator = uint256.NewInt(uint64(types.MaxSlippageBps))

// MinAmountOut 根据预期产出与最大滑点（基点）计算可接受的最小产出，向零截断。
func MinAmountOut(expected uint64, maxSlippageBps uint16) (uint64, error) {
	if maxSlippageBps > types.MaxSlippageBps {
		return 0, types.InvalidConfiguration("max_slippage %d 超过 %d", maxSlippageBps, types.MaxSlippageBps)
	}

	factor := uint256.NewInt(uint64(types.MaxSlippageBps - maxSlippageBps))
	product := new(uint256.Int).Mul(uint256.NewInt(expected), factor)
	product.Div(product, bpsDenominator)

	// factor <= 10000，结果不超过 expected
	return product.Uint64(), nil
}

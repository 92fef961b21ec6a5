package execution

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trade-gate/internal/types"
)

var _ Exchange = (*SimulatedExecutor)(nil)

// SimulatedExecutor 不与交易所交互，按最小产出直接成交。
type SimulatedExecutor struct {
	logger *zap.Logger

	mu    sync.Mutex
	swaps []SwapRequest
}

// NewSimulatedExecutor 创建模拟执行器。
func NewSimulatedExecutor(logger *zap.Logger) *SimulatedExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulatedExecutor{logger: logger}
}

// Swap 实现 Exchange。
func (s *SimulatedExecutor) Swap(ctx context.Context, req SwapRequest) (types.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return types.Settlement{}, err
	}

	s.mu.Lock()
	s.swaps = append(s.swaps, req)
	s.mu.Unlock()

	settlement := types.Settlement{
		OrderID:   "sim-" + uuid.NewString(),
		AmountIn:  req.AmountIn,
		AmountOut: req.MinAmountOut,
		Confirmed: true,
	}

	s.logger.Info("模拟兑换成交",
		zap.String("token_in", req.TokenIn.Hex()),
		zap.String("token_out", req.TokenOut.Hex()),
		zap.Uint64("amount_in", req.AmountIn),
		zap.Uint64("amount_out", settlement.AmountOut),
	)
	return settlement, nil
}

// Swaps 返回已处理的兑换请求。
func (s *SimulatedExecutor) Swaps() []SwapRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SwapRequest, len(s.swaps))
	copy(out, s.swaps)
	return out
}

package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"trade-gate/internal/types"
)

// Repository 负责持久化唯一的 BotState 记录。
type Repository interface {
	// Load 读取记录，不存在时返回 (nil, nil)。
	Load(ctx context.Context) (*types.BotState, error)
	Save(ctx context.Context, state types.BotState) error
}

// Store 串行化所有对 BotState 的读写，每次更新都是一个完整事务。
type Store struct {
	sem    *semaphore.Weighted
	repo   Repository
	logger *zap.Logger
	now    func() time.Time

	current *types.BotState
}

// Option 调整 Store 行为。
type Option func(*Store)

// WithClock 替换时间来源，便于测试。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open 创建 Store，并从 repo 中恢复已有状态。repo 为空时仅保存在内存中。
func Open(ctx context.Context, repo Repository, logger *zap.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		sem:    semaphore.NewWeighted(1),
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if repo != nil {
		loaded, err := repo.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("state: 加载状态失败: %w", err)
		}
		if loaded != nil {
			if err := validateRestored(*loaded); err != nil {
				return nil, fmt.Errorf("state: 持久化状态无效: %w", err)
			}
			s.current = loaded
			logger.Info("已恢复机器人状态",
				zap.String("authority", loaded.Authority.Hex()),
				zap.Bool("paused", loaded.IsPaused),
				zap.Uint64("total_trades", loaded.TotalTrades),
			)
		}
	}

	return s, nil
}

// Initialize 创建状态记录，每个部署只能执行一次。
func (s *Store) Initialize(ctx context.Context, authority types.Pubkey, params types.Params) (types.BotState, error) {
	if types.IsZero(authority) {
		return types.BotState{}, types.ErrUnauthorizedAccess
	}
	if err := params.Validate(); err != nil {
		return types.BotState{}, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return types.BotState{}, err
	}
	defer s.sem.Release(1)

	if s.current != nil {
		return types.BotState{}, types.ErrAlreadyInitialized
	}

	now := s.now()
	next := types.BotState{
		Authority:     authority,
		Params:        params,
		InitializedAt: now,
		UpdatedAt:     now,
	}
	if err := s.persist(ctx, next); err != nil {
		return types.BotState{}, err
	}
	s.current = &next

	s.logger.Info("机器人状态已初始化", zap.String("authority", authority.Hex()))
	return next, nil
}

// Snapshot 返回当前状态的副本。
func (s *Store) Snapshot(ctx context.Context) (types.BotState, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return types.BotState{}, err
	}
	defer s.sem.Release(1)

	if s.current == nil {
		return types.BotState{}, types.ErrNotInitialized
	}
	return *s.current, nil
}

// Initialized 判断状态是否已创建。
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	_, err := s.Snapshot(ctx)
	if errors.Is(err, types.ErrNotInitialized) {
		return false, nil
	}
	return err == nil, err
}

// Update 在独占事务内对状态副本执行 fn；fn 返回 nil 时持久化并提交，否则丢弃全部修改。
func (s *Store) Update(ctx context.Context, fn func(st *types.BotState) error) (types.BotState, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return types.BotState{}, err
	}
	defer s.sem.Release(1)

	if s.current == nil {
		return types.BotState{}, types.ErrNotInitialized
	}

	next := *s.current
	if err := fn(&next); err != nil {
		return *s.current, err
	}

	if err := checkTransition(*s.current, next); err != nil {
		return *s.current, err
	}

	next.UpdatedAt = s.now()
	if err := s.persist(ctx, next); err != nil {
		return *s.current, err
	}
	s.current = &next

	return next, nil
}

func (s *Store) persist(ctx context.Context, st types.BotState) error {
	if s.repo == nil {
		return nil
	}
	// 持久化不随调用方取消而中断，避免内存与存储不一致
	if err := s.repo.Save(context.WithoutCancel(ctx), st); err != nil {
		return fmt.Errorf("state: 持久化状态失败: %w", err)
	}
	return nil
}

// validateRestored 校验从存储恢复的记录，与运行期更新遵循同样的约束。
func validateRestored(st types.BotState) error {
	if types.IsZero(st.Authority) {
		return fmt.Errorf("authority 为空: %w", types.ErrUnauthorizedAccess)
	}
	if st.SuccessfulTrades > st.TotalTrades {
		return types.InvalidConfiguration("successful_trades %d 大于 total_trades %d", st.SuccessfulTrades, st.TotalTrades)
	}
	return st.Params.Validate()
}

func checkTransition(prev, next types.BotState) error {
	if prev.Authority != next.Authority {
		return fmt.Errorf("state: authority 创建后不可修改: %w", types.ErrUnauthorizedAccess)
	}
	if next.TotalTrades < prev.TotalTrades || next.SuccessfulTrades < prev.SuccessfulTrades {
		return types.InvalidConfiguration("交易计数不可回退")
	}
	if next.SuccessfulTrades > next.TotalTrades {
		return types.ErrNoPendingSettlement
	}
	return next.Params.Validate()
}

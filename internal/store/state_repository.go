package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trade-gate/internal/types"
)

// StateRepository 将唯一的 BotState 记录保存在 bot_state 表中。
type StateRepository struct {
	store *Store
	db    *sql.DB
}

// NewStateRepository 创建仓库并初始化表结构。
func NewStateRepository(s *Store) (*StateRepository, error) {
	if s == nil || s.DB() == nil {
		return nil, errors.New("store: 数据库实例不能为空")
	}

	repo := &StateRepository{store: s, db: s.DB()}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *StateRepository) initSchema() error {
	// id 固定为 1，保证全局只有一条记录
	stmt := `CREATE TABLE IF NOT EXISTS bot_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		authority TEXT NOT NULL,
		max_trade_amount TEXT NOT NULL,
		min_liquidity TEXT NOT NULL,
		max_slippage INTEGER NOT NULL,
		risk_threshold INTEGER NOT NULL,
		is_paused INTEGER NOT NULL DEFAULT 0,
		total_trades TEXT NOT NULL,
		successful_trades TEXT NOT NULL,
		initialized_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`
	if _, err := r.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化 bot_state 表失败: %w", err)
	}
	return nil
}

// Load 读取状态记录，不存在时返回 nil。
func (r *StateRepository) Load(ctx context.Context) (*types.BotState, error) {
	var (
		authority     string
		maxTrade      string
		minLiquidity  string
		maxSlippage   int64
		riskThreshold int64
		paused        int
		totalTrades   string
		successful    string
		initializedAt string
		updatedAt     string
	)

	row := r.db.QueryRowContext(ctx, `SELECT authority, max_trade_amount, min_liquidity, max_slippage,
		risk_threshold, is_paused, total_trades, successful_trades, initialized_at, updated_at
		FROM bot_state WHERE id = 1`)
	switch err := row.Scan(&authority, &maxTrade, &minLiquidity, &maxSlippage, &riskThreshold,
		&paused, &totalTrades, &successful, &initializedAt, &updatedAt); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("store: 查询 bot_state 失败: %w", err)
	}

	st := types.BotState{
		Authority: types.ParsePubkey(authority),
		Params: types.Params{
			MaxSlippage:   uint16(maxSlippage),
			RiskThreshold: uint8(riskThreshold),
		},
		IsPaused: paused == 1,
	}

	var err error
	if st.Params.MaxTradeAmount, err = parseUint(maxTrade); err != nil {
		return nil, err
	}
	if st.Params.MinLiquidity, err = parseUint(minLiquidity); err != nil {
		return nil, err
	}
	if st.TotalTrades, err = parseUint(totalTrades); err != nil {
		return nil, err
	}
	if st.SuccessfulTrades, err = parseUint(successful); err != nil {
		return nil, err
	}
	if st.InitializedAt, err = time.Parse(time.RFC3339Nano, initializedAt); err != nil {
		return nil, fmt.Errorf("store: 解析 initialized_at 失败: %w", err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("store: 解析 updated_at 失败: %w", err)
	}

	return &st, nil
}

// Save 以事务方式写入状态记录。
func (r *StateRepository) Save(ctx context.Context, st types.BotState) error {
	paused := 0
	if st.IsPaused {
		paused = 1
	}

	return r.store.WithTx(ctx, func(tx *sql.Tx) error {
		// uint64 超出 SQLite INTEGER 范围，计数与金额以十进制文本保存
		if _, err := tx.ExecContext(ctx, `INSERT INTO bot_state (id, authority, max_trade_amount, min_liquidity,
			max_slippage, risk_threshold, is_paused, total_trades, successful_trades, initialized_at, updated_at)
			VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				max_trade_amount = excluded.max_trade_amount,
				min_liquidity = excluded.min_liquidity,
				max_slippage = excluded.max_slippage,
				risk_threshold = excluded.risk_threshold,
				is_paused = excluded.is_paused,
				total_trades = excluded.total_trades,
				successful_trades = excluded.successful_trades,
				updated_at = excluded.updated_at`,
			st.Authority.Hex(),
			formatUint(st.Params.MaxTradeAmount),
			formatUint(st.Params.MinLiquidity),
			int64(st.Params.MaxSlippage),
			int64(st.Params.RiskThreshold),
			paused,
			formatUint(st.TotalTrades),
			formatUint(st.SuccessfulTrades),
			st.InitializedAt.UTC().Format(time.RFC3339Nano),
			st.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("store: 写入 bot_state 失败: %w", err)
		}
		return nil
	})
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"trade-gate/internal/config"
)

// Store 封装 SQLite 连接，供状态仓库与事件日志共享。
type Store struct {
	db *sql.DB
}

// NewSQLite 根据配置初始化 SQLite 存储。
func NewSQLite(cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if cfg.InMemory {
		// 每个 :memory: 连接都是独立数据库，连接关闭即丢失数据
		dsn = ":memory:"
		maxOpen, maxIdle = 1, 1
	} else if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("store: 打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)
	if !cfg.InMemory {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("store: 执行 %q 失败: %w", pragma, err)
		}
	}

	return &Store{db: conn}, nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping 检查数据库连接是否可用。
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: 数据库不可用: %w", err)
	}
	return nil
}

// WithTx 在事务中执行 fn，fn 返回错误时回滚。
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: 开启事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: 提交事务失败: %w", err)
	}
	return nil
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("store: 创建目录 %q 失败: %w", path, err)
	}
	return nil
}

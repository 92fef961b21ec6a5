package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"trade-gate/internal/store"
	"trade-gate/internal/types"
)

// Service 将事件持久化到 SQLite。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件日志服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS gate_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gate_events_type ON gate_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Publish 写入单个事件。
func (s *Service) Publish(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gate_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType types.EventType, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM gate_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0, limit)
	for rows.Next() {
		var (
			id      int64
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			s.logger.Warn("事件时间格式无效", zap.Int64("id", id), zap.String("created_at", created))
		}

		events = append(events, StoredEvent{
			ID:        id,
			Type:      types.EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}

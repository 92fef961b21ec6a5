package monitor

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"trade-gate/internal/types"
)

// Publisher 接收对外发布的事件。
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// Discard 丢弃所有事件。
type Discard struct{}

// Publish 实现 Publisher。
func (Discard) Publish(context.Context, types.Event) error { return nil }

// Multi 将事件依次发送到所有下游，汇总全部错误。
type Multi []Publisher

// Publish 实现 Publisher。
func (m Multi) Publish(ctx context.Context, event types.Event) error {
	var err error
	for _, p := range m {
		if p == nil {
			continue
		}
		err = multierr.Append(err, p.Publish(ctx, event))
	}
	return err
}

// LogPublisher 以结构化日志形式输出事件。
type LogPublisher struct {
	Logger *zap.Logger
}

// Publish 实现 Publisher。
func (l LogPublisher) Publish(_ context.Context, event types.Event) error {
	logger := l.Logger
	if logger == nil {
		return nil
	}
	logger.Info("事件",
		zap.String("type", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// StoredEvent 为从事件日志读取的记录。
type StoredEvent struct {
	ID        int64           `json:"id"`
	Type      types.EventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"trade-gate/internal/config"
	"trade-gate/internal/types"
)

// RedisPublisher 将事件追加到 Redis Stream，供下游消费。
type RedisPublisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisPublisher 根据配置创建发布器。
func NewRedisPublisher(cfg config.RedisConfig) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	return &RedisPublisher{
		rdb:    rdb,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}
}

// Publish 实现 Publisher。
func (p *RedisPublisher) Publish(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":  string(event.Type),
			"ts_ms": event.Timestamp.UnixMilli(),
			"data":  string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("monitor: 写入 Redis Stream 失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

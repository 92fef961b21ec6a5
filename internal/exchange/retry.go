package exchange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"trade-gate/internal/config"
)

// Retry 执行 fn，遇到可重试错误时按指数退避重试，直至成功、不可重试或次数用尽。
func Retry(ctx context.Context, cfg config.RetryConfig, logger *zap.Logger, operation string, fn func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	delay := cfg.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := cfg.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	attempt := 0
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := callContext(ctx, fn)
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= maxAttempts {
			logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// callContext 在 ctx 取消时立即返回；ccxt 调用本身不感知 ctx，会在后台继续完成。
func callContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

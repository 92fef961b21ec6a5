package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/stretchr/testify/assert"

	"trade-gate/internal/config"
)

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &ccxt.Error{Type: ccxt.RateLimitExceededErrType})))
	assert.True(t, IsRetryable(&ccxt.Error{Type: ccxt.DDoSProtectionErrType}))
	assert.True(t, IsRetryable(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))
	assert.False(t, IsRetryable(&ccxt.Error{Type: ccxt.OnMaintenanceErrType}))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("insufficient balance")))
}

func TestClassifyError_AmbiguousFailuresAreNotRetried(t *testing.T) {
	for _, typ := range []ccxt.ErrorType{
		ccxt.NetworkErrorErrType,
		ccxt.RequestTimeoutErrType,
		ccxt.ExchangeNotAvailableErrType,
		ccxt.BadResponseErrType,
		ccxt.NullResponseErrType,
	} {
		cause := &ccxt.Error{Type: typ, Message: "reset"}
		err, retry := classifyError(cause)
		assert.False(t, retry, typ)
		assert.ErrorIs(t, err, ErrOrderStatusUnknown)
		assert.ErrorIs(t, err, cause)
	}

	readErr := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}
	err, retry := classifyError(readErr)
	assert.False(t, retry)
	assert.ErrorIs(t, err, ErrOrderStatusUnknown)
}

func TestClassifyErrorMapsOrderFailures(t *testing.T) {
	err, retry := classifyError(&ccxt.Error{Type: ccxt.InsufficientFundsErrType, Message: " balance 0 "})
	assert.False(t, retry)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Contains(t, err.Error(), "balance 0")

	err, retry = classifyError(&ccxt.Error{Type: ccxt.InvalidOrderErrType})
	assert.False(t, retry)
	assert.Equal(t, ErrOrderRejected, err)

	err, _ = classifyError(&ccxt.Error{Type: ccxt.OnMaintenanceErrType, Message: "upgrade"})
	assert.ErrorIs(t, err, ErrMaintenance)
}

func fastRetry(attempts int) config.RetryConfig {
	return config.RetryConfig{MaxAttempts: attempts, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), nil, "swap", func() error {
		calls++
		if calls < 3 {
			return &ccxt.Error{Type: ccxt.RateLimitExceededErrType}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("bad symbol")
	err := Retry(context.Background(), fastRetry(5), nil, "swap", func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(2), nil, "swap", func() error {
		calls++
		return &ccxt.Error{Type: ccxt.DDoSProtectionErrType}
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_DoesNotRepeatAmbiguousFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(5), nil, "swap", func() error {
		calls++
		return &ccxt.Error{Type: ccxt.RequestTimeoutErrType}
	})
	assert.ErrorIs(t, err, ErrOrderStatusUnknown)
	assert.Equal(t, 1, calls)
}

func TestRetry_MaintenanceIsTerminal(t *testing.T) {
	err := Retry(context.Background(), fastRetry(5), nil, "swap", func() error {
		return &ccxt.Error{Type: ccxt.OnMaintenanceErrType, Message: "upgrade"}
	})
	assert.ErrorIs(t, err, ErrMaintenance)
}

func TestRetry_ReturnsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	err := Retry(ctx, fastRetry(1), nil, "swap", func() error {
		<-release
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewOrderClient_UnknownExchange(t *testing.T) {
	_, err := NewOrderClient(config.ExchangeConfig{Name: "nope"})
	assert.Error(t, err)
}

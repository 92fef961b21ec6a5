package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 交易所维护中，本次兑换放弃。
	ErrMaintenance = errors.New("exchange on maintenance")
	// ErrInsufficientFunds 账户余额不足以完成兑换。
	ErrInsufficientFunds = errors.New("insufficient exchange balance")
	// ErrOrderRejected 订单参数被交易所拒绝（精度、最小下单量、价格限制等）。
	ErrOrderRejected = errors.New("order rejected by exchange")
	// ErrOrderStatusUnknown 请求可能已被交易所接受，需按 clientOrderId 对账。
	ErrOrderStatusUnknown = errors.New("order status unknown")
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	_, retry := classifyError(err)
	return retry
}

// classifyError 将 ccxt 错误归一为本包的哨兵错误，并给出是否值得重试。
// 下单请求只在确定未到达撮合的情况下重试（限频、连接未建立），
// 超时与异常响应时订单可能已被接受，重试会重复下单。
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType:
			return err, true
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return fmt.Errorf("%w: %w", ErrOrderStatusUnknown, err), false
		case ccxt.OnMaintenanceErrType:
			return wrapReason(ErrMaintenance, ccxtErr.Message), false
		case ccxt.InsufficientFundsErrType:
			return wrapReason(ErrInsufficientFunds, ccxtErr.Message), false
		case ccxt.InvalidOrderErrType:
			return wrapReason(ErrOrderRejected, ccxtErr.Message), false
		default:
			return err, false
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return err, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrOrderStatusUnknown, err), false
	}
	return err, false
}

func wrapReason(sentinel error, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, message)
}

package types

import (
	"errors"
	"fmt"
)

var (
	ErrBotPaused             = errors.New("the trading bot is currently paused")
	ErrInvalidPoolAddress    = errors.New("invalid pool address provided")
	ErrRiskScoreTooLow       = errors.New("risk score is below the minimum threshold")
	ErrInsufficientLiquidity = errors.New("pool liquidity is insufficient")
	ErrExceedsMaxTradeAmount = errors.New("trade amount exceeds maximum allowed")
	ErrInvalidTokenMint      = errors.New("invalid token mint address")
	ErrUnauthorizedAccess    = errors.New("unauthorized access attempt")
	ErrSlippageExceeded      = errors.New("slippage tolerance exceeded")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrAlreadyInitialized    = errors.New("bot state already initialized")
	ErrNotInitialized        = errors.New("bot state not initialized")
	ErrNoPendingSettlement   = errors.New("no executed trade awaiting confirmation")
	ErrExchange              = errors.New("exchange error")
)

var rejections = []error{
	ErrBotPaused,
	ErrInvalidPoolAddress,
	ErrRiskScoreTooLow,
	ErrInsufficientLiquidity,
	ErrExceedsMaxTradeAmount,
	ErrInvalidTokenMint,
}

// IsRejection 判断错误是否来自风控校验链。
func IsRejection(err error) bool {
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// InvalidConfiguration 构造带描述的 ErrInvalidConfiguration。
func InvalidConfiguration(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// ExchangeError 将交易所错误包装为 ErrExchange，保留原始错误链。
func ExchangeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrExchange, err)
}

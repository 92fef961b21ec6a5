package exchange

import (
	"fmt"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"trade-gate/internal/config"
)

// OrderClient 为下单所需的 ccxt 方法子集。
type OrderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
}

// NewOrderClient 根据配置构造执行端 ccxt 客户端。
func NewOrderClient(cfg config.ExchangeConfig) (OrderClient, error) {
	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.APIPass != "" {
		userConfig["password"] = cfg.APIPass
	}
	if cfg.Wallet != "" {
		userConfig["walletAddress"] = cfg.Wallet
	}
	if cfg.PrivateKey != "" {
		userConfig["privateKey"] = cfg.PrivateKey
	}

	switch strings.ToLower(cfg.Name) {
	case "binance":
		client := ccxt.NewBinance(userConfig)
		if cfg.UseSandbox {
			client.SetSandboxMode(true)
		}
		return client, nil
	case "binanceusdm":
		client := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			client.SetSandboxMode(true)
		}
		return client, nil
	case "hyperliquid":
		client := ccxt.NewHyperliquid(userConfig)
		if cfg.UseSandbox {
			client.SetSandboxMode(true)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("exchange: 不支持的交易所 %q", cfg.Name)
	}
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Gate      GateConfig      `mapstructure:"gate"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Server    ServerConfig    `mapstructure:"server"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// GateConfig 描述首次启动时用于初始化状态的管理员与参数。
type GateConfig struct {
	Bootstrap      bool   `mapstructure:"bootstrap"`
	Authority      string `mapstructure:"authority"`
	MaxTradeAmount uint64 `mapstructure:"max_trade_amount"`
	MinLiquidity   uint64 `mapstructure:"min_liquidity"`
	MaxSlippage    uint16 `mapstructure:"max_slippage"`
	RiskThreshold  uint8  `mapstructure:"risk_threshold"`
	// AuthorityToken 为 authority 的 API 访问令牌。
	AuthorityToken string         `mapstructure:"authority_token"`
	Callers        []CallerConfig `mapstructure:"callers"`
}

// CallerConfig 将 API 令牌映射到调用方身份。
type CallerConfig struct {
	Name   string `mapstructure:"name"`
	Token  string `mapstructure:"token"`
	Pubkey string `mapstructure:"pubkey"`
}

// ExchangeConfig 描述执行端交易所连接信息。
type ExchangeConfig struct {
	Name       string        `mapstructure:"name"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	APIPass    string        `mapstructure:"api_password"`
	UseSandbox bool          `mapstructure:"use_sandbox"`
	Wallet     string        `mapstructure:"wallet_address"`
	PrivateKey string        `mapstructure:"private_key"`
	Retry      RetryConfig   `mapstructure:"retry"`
	Routes     []RouteConfig `mapstructure:"routes"`
}

// RouteConfig 将一对代币映射到交易所市场。
// side=sell 表示 token_in 为基础币；side=buy 表示 token_in 为计价币。
type RouteConfig struct {
	TokenIn     string `mapstructure:"token_in"`
	TokenOut    string `mapstructure:"token_out"`
	Symbol      string `mapstructure:"symbol"`
	Side        string `mapstructure:"side"`
	InDecimals  uint8  `mapstructure:"in_decimals"`
	OutDecimals uint8  `mapstructure:"out_decimals"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// ExecutionConfig 控制下单行为。
type ExecutionConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	Simulation bool          `mapstructure:"simulation"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// RedisConfig 控制事件流输出。
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// MetricsConfig 控制 Prometheus 指标服务，addr 为空时关闭。
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig 控制链路追踪。
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// ServerConfig 控制 HTTP 接口。
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Gate.Bootstrap && strings.TrimSpace(c.Gate.Authority) == "" {
		err = multierr.Append(err, errors.New("gate.bootstrap 需要配置 gate.authority"))
	}
	if c.Gate.AuthorityToken != "" && strings.TrimSpace(c.Gate.Authority) == "" {
		err = multierr.Append(err, errors.New("gate.authority_token 需要配置 gate.authority"))
	}
	tokens := make(map[string]struct{}, len(c.Gate.Callers)+1)
	if c.Gate.AuthorityToken != "" {
		tokens[c.Gate.AuthorityToken] = struct{}{}
	}
	for i, caller := range c.Gate.Callers {
		if caller.Token == "" || strings.TrimSpace(caller.Pubkey) == "" {
			err = multierr.Append(err, fmt.Errorf("gate.callers[%d] 缺少 token 或 pubkey", i))
			continue
		}
		if _, dup := tokens[caller.Token]; dup {
			err = multierr.Append(err, fmt.Errorf("gate.callers[%d] token 重复", i))
		}
		tokens[caller.Token] = struct{}{}
	}
	if c.Gate.MaxSlippage > 10000 {
		err = multierr.Append(err, errors.New("gate.max_slippage 必须位于[0,10000]"))
	}
	if c.Gate.RiskThreshold < 1 || c.Gate.RiskThreshold > 10 {
		err = multierr.Append(err, errors.New("gate.risk_threshold 必须位于[1,10]"))
	}
	if c.Execution.Timeout <= 0 {
		err = multierr.Append(err, errors.New("execution.timeout 必须大于0"))
	}
	if !c.Execution.Simulation {
		if c.Exchange.Name == "" {
			err = multierr.Append(err, errors.New("exchange.name 不能为空"))
		}
		if strings.EqualFold(c.Exchange.Name, "hyperliquid") {
			if c.Exchange.Wallet == "" || c.Exchange.PrivateKey == "" {
				err = multierr.Append(err, errors.New("hyperliquid 交易需要配置 wallet_address 与 private_key"))
			}
		}
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	for i, r := range c.Exchange.Routes {
		if r.TokenIn == "" || r.TokenOut == "" || r.Symbol == "" {
			err = multierr.Append(err, fmt.Errorf("exchange.routes[%d] 缺少 token_in/token_out/symbol", i))
		}
		if side := strings.ToLower(r.Side); side != "buy" && side != "sell" {
			err = multierr.Append(err, fmt.Errorf("exchange.routes[%d].side 必须为 buy 或 sell", i))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Redis.Enabled && (c.Redis.Addr == "" || c.Redis.Stream == "") {
		err = multierr.Append(err, errors.New("redis 启用时需要配置 addr 与 stream"))
	}
	if c.Server.Addr == "" {
		err = multierr.Append(err, errors.New("server.addr 不能为空"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "gate"
)

// secretKeys 没有默认值，需显式绑定环境变量才能只通过 env 提供。
var secretKeys = []string{
	"gate.authority",
	"gate.authority_token",
	"exchange.api_key",
	"exchange.api_secret",
	"exchange.api_password",
	"exchange.wallet_address",
	"exchange.private_key",
	"redis.username",
	"redis.password",
}

// Load 读取配置并叠加 GATE_ 前缀的环境变量。
// path 为空且默认配置文件不存在时，仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}

	setDefaults(v)

	file, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件 %q 失败: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolvePath(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return path, nil
	}
	if _, err := os.Stat(defaultConfigPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("检查默认配置文件失败: %w", err)
	}
	return defaultConfigPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("gate.bootstrap", false)
	v.SetDefault("gate.max_trade_amount", 1_000_000_000)
	v.SetDefault("gate.min_liquidity", 10_000_000_000)
	v.SetDefault("gate.max_slippage", 500)
	v.SetDefault("gate.risk_threshold", 5)

	v.SetDefault("exchange.name", "binance")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 3)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("execution.timeout", "15s")
	v.SetDefault("execution.simulation", true)

	v.SetDefault("database.path", "data/trade_gate.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.stream", "trade_gate:events")
	v.SetDefault("redis.max_len", 10000)

	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "trade-gate")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "5s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trade-gate/internal/config"
)

const serviceName = "trade-gate"

// NewLogger 根据配置创建 zap.Logger，所有日志携带 service 与 environment 字段。
func NewLogger(cfg config.LoggingConfig, environment string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, fmt.Errorf("解析日志级别失败: %w", err)
		}
	}

	encoding := strings.ToLower(cfg.Encoding)
	if encoding == "" {
		encoding = "console"
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errorOutputs := cfg.ErrorOutputPaths
	if len(errorOutputs) == 0 {
		errorOutputs = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(encoding),
		OutputPaths:      outputs,
		ErrorOutputPaths: errorOutputs,
		InitialFields:    initialFields(environment),
	}

	logger, err := zapCfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("创建日志实例失败: %w", err)
	}

	return logger, nil
}

func encoderConfig(encoding string) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "ts"
	enc.NameKey = "logger"
	enc.CallerKey = "caller"
	enc.FunctionKey = zapcore.OmitKey
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder

	// 颜色码只用于终端输出
	if encoding == "console" {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		enc.EncodeLevel = zapcore.LowercaseLevelEncoder
	}
	return enc
}

func initialFields(environment string) map[string]interface{} {
	fields := map[string]interface{}{"service": serviceName}
	if environment != "" {
		fields["environment"] = environment
	}
	return fields
}

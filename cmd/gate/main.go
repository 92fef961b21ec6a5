package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"trade-gate/internal/app"
	"trade-gate/internal/config"
	"trade-gate/internal/log"
	"trade-gate/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run 返回进程退出码；所有 defer 在返回前执行。
func run(args []string, stderr io.Writer) int {
	var (
		configPath string
		envPath    string
	)
	flags := flag.NewFlagSet("gate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flags.StringVar(&envPath, "env", ".env", "环境变量文件路径")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "加载环境变量文件失败: %v\n", err)
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := log.NewLogger(cfg.Logging, cfg.App.Environment)
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		return 1
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateApp, err := app.New(ctx, cfg, logger, sqliteStore)
	if err != nil {
		logger.Error("初始化服务失败", zap.Error(err))
		return 1
	}

	if err := gateApp.Run(ctx); err != nil {
		logger.Error("系统运行异常", zap.Error(err))
		return 1
	}

	logger.Info("系统已安全退出")
	return 0
}

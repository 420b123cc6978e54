package main

import (
	"context"
	"errors"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/aggsync/internal/aggregates"
	"github.com/omeyang/aggsync/internal/bootstrap"
	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

// buildApp 测试中替换为不依赖外部服务的实现。
var buildApp = func(ctx context.Context, cfg config.Config, logger xlog.Logger) (*bootstrap.App, error) {
	return bootstrap.Build(ctx, cfg, logger)
}

// env 命令执行环境。
type env struct {
	cfg    config.Config
	logger xlog.LoggerWithLevel
	app    *bootstrap.App
	out    io.Writer
}

type envAction func(ctx context.Context, cmd *cli.Command, e *env) error

// loadConfig 读取配置文件并应用命令行覆盖项。
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if errors.Is(err, config.ErrInvalid) {
		return config.Config{}, &usageError{err: err}
	}
	if err != nil {
		return config.Config{}, err
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := cmd.String("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, &usageError{err: err}
	}
	return cfg, nil
}

// oneShot 在 --timeout 内执行单次命令。
func oneShot(fn envAction) cli.ActionFunc {
	return withApp(fn, true)
}

// longRunning 执行常驻命令，直到 ctx 取消。
func longRunning(fn envAction) cli.ActionFunc {
	return withApp(fn, false)
}

func withApp(fn envAction, bounded bool) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, closeLog, err := bootstrap.NewLogger(cfg.Log, cmd.Root().ErrWriter)
		if err != nil {
			return &usageError{err: err}
		}
		defer func() { _ = closeLog() }()

		if bounded {
			if timeout := cmd.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
		}

		app, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

		err = fn(ctx, cmd, &env{cfg: cfg, logger: logger, app: app, out: cmd.Root().Writer})
		if isArgumentError(err) {
			return &usageError{err: err}
		}
		return err
	}
}

func isArgumentError(err error) bool {
	return errors.Is(err, aggregates.ErrUnknownAggregate) ||
		errors.Is(err, aggregates.ErrNotHash) ||
		errors.Is(err, aggregates.ErrPolicyUnavailable) ||
		errors.Is(err, xcachesync.ErrInvalidPolicy) ||
		errors.Is(err, xcachesync.ErrEmptyField) ||
		errors.Is(err, xcachesync.ErrZeroDelta)
}

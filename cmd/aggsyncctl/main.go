// aggsyncctl 是聚合缓存同步层的运维命令行工具。
//
// 用法:
//
//	aggsyncctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config      配置文件路径，YAML 或 JSON（环境变量 AGGSYNC_CONFIG）
//	--log-level       覆盖日志级别
//	--log-format      覆盖日志格式 text/json
//	-t, --timeout     单次命令超时 (默认: 30s)
//
// 命令:
//
//	list                          列出已注册的聚合
//	warm <aggregate>              确保缓存已填充
//	read <aggregate>              读取缓存，缺失时先填充
//	incr <aggregate> <field>      自增计数 (--delta, --policy)
//	invalidate <aggregate>        加锁删除缓存
//	repopulate <aggregate>        无条件重算
//	dirty [aggregate...]          查看脏标记
//	sweep                         周期清扫脏标记 (--once 只执行一轮)
//	lock acquire|release          手动操作分布式锁
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误（缺少参数、未知聚合、未知命令等）
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/aggsync/pkg/lifecycle/xrun"
)

const defaultTimeout = 30 * time.Second

// 版本信息，通过 -ldflags 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	code := 0
	err := xrun.Run(context.Background(), func(ctx context.Context) error {
		code = run(ctx, os.Args, os.Stdout, os.Stderr)
		return nil
	})
	os.Exit(exitCode(code, err))
}

// exitCode 合并命令退出码与进程组错误。被信号中断时一律返回 130，
// 即使命令因 ctx 取消已经返回了 1。
func exitCode(code int, err error) int {
	switch {
	case errors.Is(err, xrun.ErrSignal):
		return 130
	case err != nil && code == 0:
		return 1
	default:
		return code
	}
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "aggsyncctl",
		Usage:     "聚合缓存同步运维工具",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
				Sources: cli.EnvVars("AGGSYNC_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "单次命令超时，sweep 常驻模式不受限制",
				Value:   defaultTimeout,
			},
		},
		Commands: createCommands(),
		ExitErrHandler: func(_ context.Context, cmd *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(cmd.Root().ErrWriter, err)
			}
		},
	}
}

// run 执行命令并返回退出码。
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := createApp(stdout, stderr).Run(ctx, args)
	if err == nil {
		return 0
	}
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
		return 2
	}
	if isCLIUsageError(err) {
		return 2
	}
	fmt.Fprintf(stderr, "错误: %v\n", err)
	return 1
}

// usageError 参数错误，退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 产生的参数错误。
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"flag provided but not defined",
		"flag needs an argument",
		"invalid value",
		"Required flag",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/internal/sweeper"
	"github.com/omeyang/aggsync/pkg/config/xconf"
	"github.com/omeyang/aggsync/pkg/lifecycle/xrun"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

func createSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "按调度重算带脏标记的聚合，配置文件变更时热更新日志级别与调度",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "只执行一轮后退出"},
			&cli.StringFlag{Name: "schedule", Aliases: []string{"s"}, Usage: "覆盖 sweeper.schedule"},
		},
		Action: longRunning(runSweep),
	}
}

func runSweep(ctx context.Context, cmd *cli.Command, e *env) error {
	schedule := e.cfg.Sweeper.Schedule
	if s := cmd.String("schedule"); s != "" {
		schedule = s
	}
	opts := []sweeper.Option{
		sweeper.WithLocks(e.app.Locks),
		sweeper.WithLockTTL(e.cfg.Sweeper.LockTTL),
		sweeper.WithLogger(e.logger),
	}
	once := cmd.Bool("once")
	if !once {
		opts = append(opts, sweeper.WithImmediate())
	}
	sw, err := sweeper.New(e.app.Service, schedule, opts...)
	if err != nil {
		return &usageError{err: err}
	}

	if once {
		if timeout := cmd.Duration("timeout"); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		report, err := sw.RunOnce(ctx)
		printReport(e.out, report)
		return err
	}

	var watcher *xconf.Watcher
	if path := cmd.String("config"); path != "" {
		src, err := xconf.New(path)
		if err != nil {
			return err
		}
		watcher, err = xconf.Watch(src, reloadHandler(e, sw, cmd.String("log-level") != "", cmd.String("schedule") != ""))
		if err != nil {
			return err
		}
	}

	g, _ := xrun.NewGroup(ctx, xrun.WithName("sweep"), xrun.WithLogger(e.logger))
	if watcher != nil {
		g.Go("config-watch", watcher.Run)
	}
	g.Go("sweeper", sw.Run)
	fmt.Fprintf(e.out, "sweeping on %q, Ctrl+C to stop\n", schedule)

	err = g.Wait()
	stats := sw.Stats()
	fmt.Fprintf(e.out, "stopped: runs=%d skipped=%d failed=%d\n", stats.Executions(), stats.Skips(), stats.Failures())
	return err
}

// reloadHandler 命令行显式指定的日志级别与调度不被配置文件覆盖。
func reloadHandler(e *env, sw *sweeper.Sweeper, pinLevel, pinSchedule bool) xconf.ReloadFunc {
	return func(src xconf.Config, err error) {
		ctx := context.Background()
		if err != nil {
			e.logger.Warn(ctx, "config reload failed, keeping previous", xlog.Err(err))
			return
		}
		cfg, err := config.FromSource(src)
		if err != nil {
			e.logger.Warn(ctx, "reloaded config invalid, keeping previous", xlog.Err(err))
			return
		}
		if !pinLevel {
			if level, err := xlog.ParseLevel(cfg.Log.Level); err == nil {
				e.logger.SetLevel(level)
			}
		}
		if !pinSchedule {
			if err := sw.Reschedule(cfg.Sweeper.Schedule); err != nil {
				e.logger.Warn(ctx, "reschedule failed", xlog.Err(err))
			}
		}
		e.logger.Info(ctx, "config reloaded", xlog.Component("aggsyncctl"))
	}
}

func printReport(w io.Writer, r xcachesync.SweepReport) {
	fmt.Fprintf(w, "checked=%d repopulated=[%s] rate_limited=[%s] duration=%s\n",
		r.Checked, strings.Join(r.Repopulated, ","), strings.Join(r.RateLimited, ","),
		r.Duration.Round(time.Millisecond))
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "failed %s: %v\n", name, r.Failed[name])
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/aggsync/internal/aggregates"
	"github.com/omeyang/aggsync/internal/bootstrap"
	"github.com/omeyang/aggsync/pkg/storage/xcachesync"
)

func createCommands() []*cli.Command {
	return []*cli.Command{
		createListCommand(),
		createWarmCommand(),
		createReadCommand(),
		createIncrCommand(),
		createInvalidateCommand(),
		createRepopulateCommand(),
		createDirtyCommand(),
		createSweepCommand(),
		createLockCommand(),
	}
}

// createListCommand 不连接外部服务。
func createListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "列出已注册的聚合",
		Action: func(_ context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			registry, err := bootstrap.NewRegistry(cfg)
			if err != nil {
				return &usageError{err: err}
			}
			return printRegistry(cmd.Root().Writer, registry)
		},
	}
}

func createWarmCommand() *cli.Command {
	return &cli.Command{
		Name:      "warm",
		Usage:     "确保缓存已填充",
		ArgsUsage: "<aggregate>",
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			name, err := aggregateArg(cmd)
			if err != nil {
				return err
			}
			res, err := e.app.Service.Warm(ctx, name)
			if err != nil {
				return err
			}
			if res.WasWarm {
				fmt.Fprintf(e.out, "%s: already warm\n", name)
			} else {
				fmt.Fprintf(e.out, "%s: populated\n", name)
			}
			return nil
		}),
	}
}

func createReadCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Aliases:   []string{"get"},
		Usage:     "读取缓存，缺失时先填充",
		ArgsUsage: "<aggregate>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "以 JSON 输出"},
		},
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			name, err := aggregateArg(cmd)
			if err != nil {
				return err
			}
			v, err := e.app.Service.Read(ctx, name)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				enc := json.NewEncoder(e.out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			return printValue(e.out, v)
		}),
	}
}

func createIncrCommand() *cli.Command {
	return &cli.Command{
		Name:      "incr",
		Usage:     "自增计数",
		ArgsUsage: "<aggregate> <field>",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "delta", Aliases: []string{"d"}, Usage: "增量", Value: 1},
			&cli.StringFlag{Name: "policy", Aliases: []string{"p"}, Usage: "blocking 或 non-blocking，默认使用聚合配置"},
		},
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			if cmd.Args().Len() != 2 {
				return usagef("incr 需要 <aggregate> <field>")
			}
			name, field := cmd.Args().Get(0), cmd.Args().Get(1)

			var (
				res xcachesync.IncrementResult
				err error
			)
			if p := cmd.String("policy"); p != "" {
				policy, perr := xcachesync.ParsePolicy(p)
				if perr != nil {
					return &usageError{err: perr}
				}
				res, err = e.app.Service.IncrementWithPolicy(ctx, name, field, cmd.Int64("delta"), policy)
			} else {
				res, err = e.app.Service.Increment(ctx, name, field, cmd.Int64("delta"))
			}
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(e.out, "skipped: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(e.out, "%s[%s] = %d\n", name, field, res.Value)
			return nil
		}),
	}
}

func createInvalidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Aliases:   []string{"del"},
		Usage:     "加锁删除缓存",
		ArgsUsage: "<aggregate>",
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			name, err := aggregateArg(cmd)
			if err != nil {
				return err
			}
			deleted, err := e.app.Service.Invalidate(ctx, name)
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintf(e.out, "%s: invalidated\n", name)
			} else {
				fmt.Fprintf(e.out, "%s: not cached\n", name)
			}
			return nil
		}),
	}
}

func createRepopulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "repopulate",
		Usage:     "无条件重算并清除脏标记",
		ArgsUsage: "<aggregate>",
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			name, err := aggregateArg(cmd)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := e.app.Service.Repopulate(ctx, name); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s: repopulated in %s\n", name, time.Since(start).Round(time.Millisecond))
			return nil
		}),
	}
}

func createDirtyCommand() *cli.Command {
	return &cli.Command{
		Name:      "dirty",
		Usage:     "查看脏标记，不指定时检查全部计数聚合",
		ArgsUsage: "[aggregate...]",
		Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
			flags, err := e.app.Service.Dirty(ctx, cmd.Args().Slice()...)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(flags))
			for name := range flags {
				names = append(names, name)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
			for _, name := range names {
				state := "clean"
				if flags[name] {
					state = "dirty"
				}
				fmt.Fprintf(tw, "%s\t%s\n", name, state)
			}
			return tw.Flush()
		}),
	}
}

func aggregateArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", usagef("%s 需要一个聚合名", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func printRegistry(w io.Writer, r *aggregates.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tKEY\tPOLICY")
	for _, name := range r.Names() {
		d, err := r.Get(name)
		if err != nil {
			return err
		}
		policy := "-"
		if d.Kind == aggregates.KindHash {
			policy = d.Policy.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.Kind, d.Target.CacheKey, policy)
	}
	return tw.Flush()
}

func printValue(w io.Writer, v any) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch v := v.(type) {
	case map[string]int64:
		fields := make([]string, 0, len(v))
		for f := range v {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(tw, "%s\t%d\n", f, v[f])
		}
	case []aggregates.RankedClient:
		for i, c := range v {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\n", i+1, c.ClienteID, c.ClienteNombre, c.TotalCobertura)
		}
	default:
		fmt.Fprintf(tw, "%v\n", v)
	}
	return tw.Flush()
}

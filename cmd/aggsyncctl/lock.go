package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultLockTTL = 30 * time.Second

var errLockHeld = errors.New("lock is held by another owner")

func ttlFlag() cli.Flag {
	return &cli.DurationFlag{Name: "ttl", Usage: "锁过期时间", Value: defaultLockTTL}
}

// createLockCommand 手动排障用：抢占或释放卡住的填充锁。
func createLockCommand() *cli.Command {
	return &cli.Command{
		Name:  "lock",
		Usage: "操作分布式锁",
		Commands: []*cli.Command{
			{
				Name:      "acquire",
				Usage:     "获取锁并打印 token",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{ttlFlag()},
				Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
					if cmd.Args().Len() != 1 {
						return usagef("lock acquire 需要 <key>")
					}
					key := cmd.Args().First()
					lease, err := e.app.Locks.Acquire(ctx, key, cmd.Duration("ttl"))
					if err != nil {
						return err
					}
					if lease == nil {
						return fmt.Errorf("%s: %w", key, errLockHeld)
					}
					fmt.Fprintf(e.out, "%s\t%s\t%s\n", lease.Key, lease.Token, lease.TTL)
					return nil
				}),
			},
			{
				Name:      "extend",
				Usage:     "延长持有的锁",
				ArgsUsage: "<key> <token>",
				Flags:     []cli.Flag{ttlFlag()},
				Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
					if cmd.Args().Len() != 2 {
						return usagef("lock extend 需要 <key> <token>")
					}
					key := cmd.Args().First()
					if err := e.app.Locks.Extend(ctx, key, cmd.Args().Get(1), cmd.Duration("ttl")); err != nil {
						return err
					}
					fmt.Fprintf(e.out, "%s: extended\n", key)
					return nil
				}),
			},
			{
				Name:      "release",
				Usage:     "按 token 释放锁",
				ArgsUsage: "<key> <token>",
				Action: oneShot(func(ctx context.Context, cmd *cli.Command, e *env) error {
					if cmd.Args().Len() != 2 {
						return usagef("lock release 需要 <key> <token>")
					}
					key := cmd.Args().First()
					if err := e.app.Locks.Release(ctx, key, cmd.Args().Get(1)); err != nil {
						return err
					}
					fmt.Fprintf(e.out, "%s: released\n", key)
					return nil
				}),
			},
		},
	}
}

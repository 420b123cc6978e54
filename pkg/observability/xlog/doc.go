// Package xlog 基于 log/slog 的结构化日志。
//
// 所有方法强制传入 context.Context，并只接受 slog.Attr：
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/aggsync/aggsync.log", xrotate.WithMaxSize(100)).
//		Build()
//	defer cleanup()
//	logger.Info(ctx, "cache populated", xlog.Key("counts:agente:polizas"), xlog.Count(42))
//
// Builder 采用 first-error-wins：遇到第一个配置错误后后续 Set 被跳过，在 Build 时返回。
//
// 启用 enrich（默认）时，日志会自动附加 ctx 中 OpenTelemetry span 的 trace_id / span_id。
//
// 组件内部持有 Logger 而非使用全局实例；未注入时使用 [Discard]。
package xlog

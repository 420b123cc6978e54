// Package xmetrics 提供统一的观测接口（metrics + tracing）。
//
// 业务包只依赖 Observer/Span/Attr，默认实现基于 OpenTelemetry。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xcachesync",
//		Operation: "ensure_warm",
//	})
//	defer func() { span.End(xmetrics.Result{Err: err}) }()
//
// # 指标
//
//   - aggsync.operation.total：操作计数
//   - aggsync.operation.duration：操作耗时（秒）
//
// 两个指标都带 component / operation / status 三个属性。
package xmetrics

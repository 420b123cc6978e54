// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展
//   - xmetrics: 统一可观测性接口（指标、追踪）
//   - xrotate: 日志文件轮转
//
// 指标和 span 命名遵循 OpenTelemetry 语义规范。
package observability

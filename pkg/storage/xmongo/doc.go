// Package xmongo 提供 MongoDB 客户端包装器与聚合管道执行器。
//
// xmongo 不包装底层客户端的所有 API，而是提供：
//   - 统一的工厂方法（New），底层客户端通过 Client() 直接暴露
//   - 健康检查、统计与慢查询检测
//   - Aggregator：执行分组计数管道并解码为 (id, total) 行，作为缓存同步的权威数据源
//
// # 聚合结果解码
//
// Aggregate 从每个结果文档读取 Query.IDField（默认 "_id"）与 Query.TotalField
// （默认 "total"），字段名支持 "a.b" 形式的嵌套路径。
//
// id 统一转为字符串：ObjectID 取十六进制，字符串原样保留，数值取十进制形式。
// id 为 null 的分组被跳过。total 接受 int32、int64、double 与 Decimal128，
// 非整数的 double 四舍五入。
//
// RankedAggregate 返回原始文档，用于 top-N 之类的单值聚合。
//
// Close() 可安全重复调用，首次关闭执行断连，后续调用返回 ErrClosed。
package xmongo

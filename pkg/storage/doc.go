// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xcache: Redis 缓存适配层，含原子获取/释放脚本
//   - xcachesync: 缓存同步原语（预热、增量、失效、计算缓存、脏标记补算）
//   - xmongo: MongoDB 客户端封装与聚合查询
//
// 所有子包都通过 xmetrics.Observer 上报指标。
package storage

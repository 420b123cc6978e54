// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xdlock: 分布式锁，支持单节点 Redis 与 redsync 多节点后端
//   - xcron: 定时任务，可借助 xdlock 保证同一时刻只有一个副本执行
//
// 锁以随机令牌标识持有者，释放和续期都校验令牌。
package distributed

// Package sweeper 周期性重算带脏标记的聚合缓存。
//
// 多副本部署时每轮只由取得分布式锁的一个副本执行，锁 key 为
// [xcron.DefaultLockKeyPrefix] + [JobName]。
package sweeper

// Package xcache 是聚合缓存同步层使用的 Redis 存储适配器。
//
// Store 只暴露同步层需要的原语：键存在性、字符串读写、Hash 读写与自增、
// 过期设置，以及几个必须原子完成的复合操作：
//
//   - ReplaceHash：MULTI/EXEC 中 DEL + HSET + EXPIRE，读者看不到半写的 Hash
//   - CompareAndDelete / CompareAndExpire：值等于 token 时才 DEL 或续期，用于锁
//   - IncrementUnlessLocked：锁存在或字段缺失时置脏标记，否则 HINCRBY
//
// 底层客户端通过 Client() 直接暴露，需要其他命令时直接使用 go-redis。
//
// # Redis Cluster
//
// IncrementUnlessLocked 与 ReplaceHash 的 alsoDelete 会在一次原子操作中访问多个 key，
// Cluster 部署下这些 key 需要使用相同的 hash tag，例如 "{counts:agente}:dirty"。
package xcache

// Package xcachesync 让多个进程围绕 Redis 中的聚合缓存协作，而不会同时回源重算。
//
// 聚合结果保存为 Redis Hash（id → 计数）或 JSON 字符串。所有组件按同一套约定协作：
//
//   - 缓存 key 存在即视为已预热，读路径不加锁
//   - 填充、失效与强制重算都在 "lock:<cacheKey>" 锁内进行
//   - 等锁有上限 MaxWait，超时返回 *UnavailableError，可用 errors.Is(err, ErrCacheUnavailable) 判断
//   - 锁在任何退出路径上都会释放，释放使用脱离调用方取消的 ctx
//
// # 组件
//
//   - Warmer：EnsureWarm 确保 Hash 已填充；结果为空时写入带短 TTL 的占位字段
//   - Incrementer：在业务写入权威存储后同步缓存计数，支持阻塞与非阻塞两种策略
//   - Invalidator：持锁删除缓存 key
//   - Computer / ComputeAndCache：单值 JSON 缓存，进程内 singleflight 合并并发请求
//   - Repopulator：检查脏标记并强制重算，可选限流
//
// # 读己之写
//
// 阻塞策略下 EnsureWarm 触发填充时不再自增（WasWarm=false），
// 因为填充结果理应已包含刚写入的记录。若权威存储的写入对聚合查询尚不可见，
// 这次自增会丢失，直到下一次失效或强制重算。
package xcachesync

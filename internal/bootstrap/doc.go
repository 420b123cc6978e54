// Package bootstrap 按 [config.Config] 组装进程依赖：
// Redis、MongoDB、分布式锁、同步组件与 [aggregates.Service]。
//
// [App.Close] 按创建的逆序释放资源。
package bootstrap

// Package storageopt 提供 storage 子包共享的健康检查、慢查询检测与统计计数。
//
// 本包是 internal 包，仅供 pkg/storage 下的子包使用。
package storageopt

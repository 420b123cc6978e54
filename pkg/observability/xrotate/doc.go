// Package xrotate 提供按大小轮转的日志文件输出，基于 lumberjack。
//
//	r, err := xrotate.NewLumberjack("/var/log/aggsync/aggsync.log",
//		xrotate.WithMaxSize(100),
//		xrotate.WithMaxBackups(5),
//	)
//	defer r.Close()
package xrotate

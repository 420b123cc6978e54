package xrotate

import "io"

var _ io.WriteCloser = (Rotator)(nil)

// Rotator 日志轮转器，实现必须并发安全。
// Close 后 Write 和 Rotate 返回 [ErrClosed]。
type Rotator interface {
	Write(p []byte) (n int, err error)
	Close() error
	// Rotate 手动轮转：关闭当前文件、重命名为备份并打开新文件。
	Rotate() error
}

package bootstrap

import (
	"io"

	"github.com/omeyang/aggsync/internal/config"
	"github.com/omeyang/aggsync/pkg/observability/xlog"
	"github.com/omeyang/aggsync/pkg/observability/xrotate"
)

// NewLogger 按日志配置构建 Logger。cfg.File 非空时写入轮转文件，否则写 w。
func NewLogger(cfg config.LogConfig, w io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	return xlog.New().
		SetOutput(w).
		SetLevelString(cfg.Level).
		SetFormat(cfg.Format).
		SetRotation(cfg.File, xrotate.WithMaxSize(100), xrotate.WithMaxBackups(5), xrotate.WithCompress(true)).
		Build()
}

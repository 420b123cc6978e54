package xrotate

import "errors"

var (
	ErrEmptyFilename   = errors.New("xrotate: filename is required")
	ErrInvalidMaxSize  = errors.New("xrotate: invalid MaxSizeMB")
	ErrInvalidBackups  = errors.New("xrotate: invalid MaxBackups")
	ErrInvalidMaxAge   = errors.New("xrotate: invalid MaxAgeDays")
	ErrNoCleanupPolicy = errors.New("xrotate: MaxBackups and MaxAgeDays cannot both be 0")
	ErrClosed          = errors.New("xrotate: rotator is closed")
)

package xretry

import "errors"

var (
	// ErrWaitTimeout 表示 Poll 在 MaxWait 内未达成条件。
	ErrWaitTimeout = errors.New("xretry: wait timeout")

	// ErrNilStep 表示 Poll 的 step 函数为 nil。
	ErrNilStep = errors.New("xretry: nil step function")

	// errPending 标记"条件尚未满足"，只在 Poll 内部触发下一轮。
	errPending = errors.New("xretry: condition pending")
)

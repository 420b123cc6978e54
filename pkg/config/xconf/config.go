package xconf

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式。
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Config 已加载的配置。所有方法并发安全。
type Config interface {
	// Client 返回当前 koanf 实例。Reload 之后旧指针仍可用，但数据已过期。
	Client() *koanf.Koanf

	// Unmarshal 把 path 下的配置解码进 target，path 为空时解码整个配置。
	// target 中文件未出现的字段保持原值。
	Unmarshal(path string, target any) error

	// Reload 重新读取文件，从字节创建的配置返回 ErrNotReloadable。
	Reload() error

	// Path 从字节创建时为空。
	Path() string

	Format() Format
}

var (
	ErrEmptyPath         = errors.New("xconf: empty config path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	ErrLoadFailed        = errors.New("xconf: failed to load config")
	ErrParseFailed       = errors.New("xconf: failed to parse config")
	ErrUnmarshalFailed   = errors.New("xconf: failed to unmarshal config")
	ErrNotReloadable     = errors.New("xconf: config created from bytes cannot be reloaded")
)

// Tag 结构体字段标签名。
const Tag = "koanf"

const delim = "."

// Package xconf 加载 YAML/JSON 配置文件，基于 koanf。
//
// 只负责加载、反序列化与热重载；默认值与校验由调用方的配置结构体完成。
// 常见用法是先构造带默认值的结构体，再用 Unmarshal 覆盖文件中出现的字段：
//
//	cfg, err := xconf.New("/etc/aggsync/aggsync.yaml")
//	c := config.Default()
//	err = cfg.Unmarshal("", &c)
//
// Reload 解析成功后才原子替换 koanf 实例，失败时保留旧配置。
// Watch 监视文件所在目录，兼容编辑器先写临时文件再 rename 的保存方式。
package xconf

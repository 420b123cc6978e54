// Package config 定义 aggsync 进程配置：默认值、文件加载与校验。
//
// 文件格式为 YAML 或 JSON，字段名见各结构体的 koanf 标签。文件中未出现的字段保留默认值。
package config

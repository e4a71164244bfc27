// Package config 提供 jsonforge 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 JSONFORGE_）的顺序加载，
// 覆盖 server、forge、engine、redis、database、log、telemetry 七个分区。
package config

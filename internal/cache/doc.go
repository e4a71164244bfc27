// Package cache 封装 Redis，作为生成片段缓存的存储层。
//
// Manager 负责连接、key 前缀、默认 TTL 与后台健康检查；
// engine.CachedEngine 在其上实现按请求摘要缓存片段。
package cache

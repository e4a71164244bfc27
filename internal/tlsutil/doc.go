// Package tlsutil 为推理后端 HTTP 客户端与 Redis 连接提供统一的 TLS 设置
// （TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil

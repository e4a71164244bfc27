// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package main 提供 jsonforge 的可执行入口。

# 概述

cmd/jsonforge 提供 HTTP API 服务以及离线的 predict / decompose 子命令。
配置来自 YAML 文件与环境变量，日志使用 zap，指标通过独立端口以
Prometheus 格式暴露，追踪通过 OTLP 导出。

# 核心类型

  - app         组件装配：推理后端、Redis 缓存、运行记录存储、流水线
  - Server      API 端口、metrics 端口、心跳与优雅关闭
  - Middleware  HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、predict、decompose、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    MetricsMiddleware、RequestLogger、CORS、BodyLimit、RateLimiter、APIKeyAuth
  - 启动时执行加速器预检，要求加速器而引擎不满足时直接退出
  - Redis 或数据库不可用时降级运行
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止限流清理与心跳 → 关闭 metrics → 释放资源 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main

// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 jsonforge HTTP API 的请求处理器实现。

# 核心类型

  - ForgeHandler: predict（逐片段生成并合并）与 decompose
  - RunsHandler: 历史运行的查询与分页
  - HealthHandler: /health、/healthz、/ready、/version
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与响应大小

# 错误映射

types.Error 的错误码经 types.StatusFor 映射为 HTTP 状态码。输入 schema
不是合法 JSON 或不满足 Draft-07 时返回 400 SCHEMA_INVALID；引擎失败返回
502 GENERATION_FAILED；要求加速器而不可用时返回 503。
*/
package handlers

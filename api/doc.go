// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

// Package api 定义 jsonforge HTTP API 的请求与响应类型。
//
// # API Overview
//
// jsonforge 通过 REST 接口暴露 schema 分解与逐片段生成：
//   - POST /api/v1/predict    按 schema 生成 JSON，可选 prompt 反馈与二次精炼
//   - POST /api/v1/decompose  返回 schema 的单叶子子 schema 列表
//   - GET  /api/v1/runs       分页列出历史运行
//   - GET  /api/v1/runs/{id}  查询单次运行
//   - /health /healthz /ready /version 健康检查
//
// # Authentication
//
// 配置了 server.api_keys 时，/api/v1 下的接口需要 X-API-Key 请求头：
//
//	X-API-Key: your-api-key
//
// # Base URL
//
//	http://localhost:8080
package api

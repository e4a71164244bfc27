// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package llm 定义 jsonforge 使用的大语言模型接入抽象。

# 概述

engine.ProviderEngine 通过 [Provider] 驱动任意 OpenAI 兼容的推理后端
（vLLM、llama.cpp server、Ollama、OpenAI 本身），并利用
response_format: json_schema 让后端做受约束解码。

# 核心类型

  - [Provider]：Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：与 OpenAI Chat Completions 对齐的请求响应
  - [ResponseFormat]：结构化输出约束（json_object / json_schema）
  - [Error]：带错误码、HTTP 状态与可重试标记的上游错误

子包 providers/openaicompat 提供 HTTP 实现，tokenizer 提供 token 计数。
*/
package llm

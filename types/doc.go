// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package types 提供 jsonforge 全局共享的错误类型。

# 概述

types 是最底层的公共包，不依赖任何内部包。schema、forge、engine、api
都通过这里的 Error / ErrorCode 表达失败原因，HTTP 层再把错误码映射为
状态码。

# 错误码

  - SCHEMA_INVALID: Draft-07 校验失败（子 schema 或片段）
  - GENERATION_FAILED: 生成引擎失败，终止当前 pass
  - ACCELERATOR_UNAVAILABLE: 需要加速器但引擎运行在 CPU 上
  - INVALID_REQUEST / INTERNAL_ERROR / TIMEOUT: HTTP 边界
*/
package types

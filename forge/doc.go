// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package forge 驱动约束解码引擎，逐个子 schema 生成片段并合并为一条记录。

# 概述

一次 pass 的流程：

	schema.Decompose(root) → 对每个子 schema：
	    [可选] Draft-07 校验子 schema  → 失败则 skip-and-log
	    Engine.Generate(prompt, 子 schema)  → 失败则整个 pass 失败
	    [可选] 校验片段               → 失败则 skip-and-log
	    Merger.Merge(片段)

# 核心类型

  - Record: 保序的 JSON 对象，片段与合并结果都用它表示
  - Engine: 生成引擎抽象，Generate 返回一个片段
  - Merger: 显式累加器，支持两种合并策略（prompt feedback 开 / 关）
  - Pipeline: 生成驱动，提供 Run / RunAll / Refine

# 合并策略

feedback 关闭（默认）：后写覆盖。feedback 开启：保留第一次写入，重复的 key
只把 " key: value" 追加到 prompt 一次。

# 并发

单个 pass 严格顺序执行；Pipeline 不持有 pass 级状态，可被多个 goroutine
同时调用。取消只在每个子 schema 开始前检查。
*/
package forge

// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、生成流水线、
推理后端、缓存与运行记录存储。

# 核心类型

  - Collector：持有 Counter、Histogram 等向量指标，按业务域分组。
    它同时实现 forge.Recorder，可直接传给 forge.WithRecorder。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 流水线指标：子 schema 结果（generated / skipped_* / failed）、单个子 schema
    耗时、prompt feedback 追加次数、pass 总数与耗时。
  - 推理指标：请求数、耗时、prompt/completion token 用量，按 provider/model 分组。
  - 缓存指标：命中与未命中，按 cache_type 分组。
  - 存储指标：查询耗时，按 operation 分组。
*/
package metrics

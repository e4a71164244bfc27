/*
包 engine 提供 forge.Engine 的具体实现。

  - ProviderEngine：通过任意 llm.Provider（OpenAI 兼容接口）做受约束生成，
    用 response_format=json_schema 传入子 schema，按 token 预算限制输出长度，
    解析并校验返回的 JSON 片段。
  - CachedEngine：Redis 缓存装饰器，相同（模型、子 schema、prompt、预算）
    的请求直接命中缓存，并发的相同请求通过 singleflight 合并。
*/
package engine

// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 jsonforge 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertJSONEqual / AssertRecordJSON / AssertErrorCode
  - 异步断言: AssertEventuallyTrue，支持超时轮询
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockEngine（forge.Engine）与 MockProvider（llm.Provider），
    支持 Builder 模式与错误注入
  - testutil/fixtures: 示例 prompt 与 JSON Schema，供 CLI、API 与测试共用

# 使用示例

	ctx := testutil.TestContext(t)
	engine := mocks.NewMockEngine().WithValue("name", "Wand")
	res, err := forge.NewPipeline(engine).Run(ctx, prompt, root)
	testutil.AssertRecordJSON(t, `{"name":"Wand"}`, res.Record)
*/
package testutil

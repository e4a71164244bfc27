// Package openaicompat 实现 OpenAI Chat Completions 协议的 llm.Provider。
//
// vLLM、llama.cpp server、Ollama、LM Studio 等本地推理服务都暴露同样的接口，
// 并支持 response_format: json_schema 的受约束解码，因此 jsonforge 只需要
// 这一个实现：
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "vllm",
//	    BaseURL:      "http://localhost:8000",
//	    DefaultModel: "Qwen/Qwen2.5-7B-Instruct",
//	}, logger)
package openaicompat

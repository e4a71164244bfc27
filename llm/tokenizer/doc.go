// Package tokenizer 提供 token 计数：OpenAI 系模型使用 tiktoken，
// 其他本地模型回退到按字符估算，用于在生成前检查 prompt 预算。
package tokenizer

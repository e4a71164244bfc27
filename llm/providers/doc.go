// Package providers 提供 OpenAI 兼容协议的公共线格式类型与错误映射，
// 供 openaicompat 等具体实现复用。
package providers

// Package mocks 提供 forge.Engine 与 llm.Provider 的测试替身。
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/schema"
)

// MockEngine 按子 schema 的 key 返回预设片段，未预设的 key 按类型生成占位值
type MockEngine struct {
	mu        sync.Mutex
	fragments map[string]*forge.Record
	errs      map[string]error
	device    string
	calls     []forge.GenerateRequest
}

// NewMockEngine 创建 MockEngine，默认设备为 cpu
func NewMockEngine() *MockEngine {
	return &MockEngine{
		fragments: make(map[string]*forge.Record),
		errs:      make(map[string]error),
		device:    "cpu",
	}
}

// WithValue 为 key 预设片段 {key: value}
func (m *MockEngine) WithValue(key string, value any) *MockEngine {
	return m.WithFragment(key, forge.RecordOf(key, value))
}

// WithFragment 为 key 预设完整片段
func (m *MockEngine) WithFragment(key string, fragment *forge.Record) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fragments[key] = fragment
	return m
}

// WithError 让 key 的生成失败
func (m *MockEngine) WithError(key string, err error) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[key] = err
	return m
}

// WithDevice 设置 Accelerator 报告的设备
func (m *MockEngine) WithDevice(device string) *MockEngine {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = device
	return m
}

// Generate 实现 forge.Engine
func (m *MockEngine) Generate(ctx context.Context, req *forge.GenerateRequest) (*forge.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, *req)

	key := schema.SubSchemaKey(req.Schema)
	if err, ok := m.errs[key]; ok {
		return nil, err
	}
	if frag, ok := m.fragments[key]; ok {
		return frag.Clone(), nil
	}
	return forge.RecordOf(key, placeholder(key, req.Schema.Property(key))), nil
}

// Accelerator 实现 forge.AcceleratorReporter
func (m *MockEngine) Accelerator(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device, nil
}

// Calls 返回所有请求的副本
func (m *MockEngine) Calls() []forge.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]forge.GenerateRequest(nil), m.calls...)
}

// Prompts 返回每次请求的 prompt
func (m *MockEngine) Prompts() []string {
	calls := m.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Prompt
	}
	return out
}

func placeholder(key string, n *schema.Node) any {
	switch n.Type() {
	case "integer":
		return int64(0)
	case "number":
		return 0.0
	case "boolean":
		return false
	case "array":
		return []any{}
	case "null":
		return nil
	default:
		return fmt.Sprintf("<%s>", key)
	}
}

var (
	_ forge.Engine              = (*MockEngine)(nil)
	_ forge.AcceleratorReporter = (*MockEngine)(nil)
)

package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/v-sekai/jsonforge/llm"
)

// MockProvider 是 llm.Provider 的模拟实现，按顺序返回预设内容
type MockProvider struct {
	mu sync.Mutex

	name      string
	responses []string
	finish    string
	err       error
	healthy   bool
	healthErr error

	promptTokens     int
	completionTokens int

	calls          []*llm.ChatRequest
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// NewMockProvider 创建一个健康的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		healthy:          true,
		promptTokens:     10,
		completionTokens: 5,
	}
}

// WithResponses 设置依次返回的内容，用完后重复最后一条
func (m *MockProvider) WithResponses(contents ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = contents
	return m
}

// WithFinishReason 设置 finish_reason
func (m *MockProvider) WithFinishReason(reason string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finish = reason
	return m
}

// WithError 让 Completion 返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithHealth 设置健康检查结果
func (m *MockProvider) WithHealth(healthy bool, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy, m.healthErr = healthy, err
	return m
}

// WithCompletionFunc 自定义 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.completionFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	content := ""
	if len(m.responses) > 0 {
		content = m.responses[0]
		if len(m.responses) > 1 {
			m.responses = m.responses[1:]
		}
	}
	finish := m.finish
	if finish == "" {
		finish = "stop"
	}
	return &llm.ChatResponse{
		ID:       "mock-completion",
		Provider: m.name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: finish,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.healthErr != nil {
		return nil, m.healthErr
	}
	return &llm.HealthStatus{Healthy: m.healthy, Latency: time.Millisecond}, nil
}

// Name 实现 llm.Provider
func (m *MockProvider) Name() string { return m.name }

// Calls 返回所有请求
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

var _ llm.Provider = (*MockProvider)(nil)

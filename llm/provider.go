package llm

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
)

// 统一的 LLM 错误码，用于对齐 HTTP 状态与可重试性。
type ErrorCode string

const (
	ErrInvalidRequest   ErrorCode = "LLM_INVALID_REQUEST"   // 参数/格式错误
	ErrUnauthorized     ErrorCode = "LLM_UNAUTHORIZED"      // 未授权或密钥失效
	ErrForbidden        ErrorCode = "LLM_FORBIDDEN"         // 权限或内容策略拒绝
	ErrRateLimited      ErrorCode = "LLM_RATE_LIMITED"      // 上游限流
	ErrQuotaExceeded    ErrorCode = "LLM_QUOTA_EXCEEDED"    // 额度用尽
	ErrModelOverloaded  ErrorCode = "LLM_MODEL_OVERLOADED"  // 模型过载
	ErrUpstreamTimeout  ErrorCode = "LLM_UPSTREAM_TIMEOUT"  // 上游超时
	ErrUpstreamError    ErrorCode = "LLM_UPSTREAM_ERROR"    // 上游 5xx/网络错误
	ErrTruncated        ErrorCode = "LLM_TRUNCATED"         // 命中 max_tokens
	ErrMalformedContent ErrorCode = "LLM_MALFORMED_CONTENT" // 输出不是合法 JSON
)

// Error is an upstream failure reported by a Provider.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat constrains the shape of the assistant message.
type ResponseFormat struct {
	// Type is "json_object" or "json_schema".
	Type       string            `json:"type"`
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// JSONSchemaFormat carries the schema for Type "json_schema".
type JSONSchemaFormat struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
	Strict      bool            `json:"strict,omitempty"`
}

type ChatRequest struct {
	TraceID        string            `json:"trace_id,omitempty"`
	Model          string            `json:"model"`
	Messages       []Message         `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float32           `json:"temperature,omitempty"`
	TopP           float32           `json:"top_p,omitempty"`
	Stop           []string          `json:"stop,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// FirstContent returns the first choice's content and finish reason.
func (r *ChatResponse) FirstContent() (string, string, bool) {
	if r == nil || len(r.Choices) == 0 {
		return "", "", false
	}
	c := r.Choices[0]
	return c.Message.Content, c.FinishReason, true
}

// HealthStatus 表示 Provider 健康检查结果。
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 是推理后端的统一适配接口。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 执行轻量级健康检查，返回延迟与可用性信息。
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}

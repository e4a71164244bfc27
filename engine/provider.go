package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/llm"
	"github.com/v-sekai/jsonforge/llm/tokenizer"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 🧠 Provider 引擎
// =============================================================================

// DefaultSystemPrompt 系统提示词，%s 处填入子 schema
const DefaultSystemPrompt = "You fill in JSON documents. Reply with one JSON object that validates against this JSON schema and nothing else:\n%s"

// LLMRecorder 接收每次上游调用的指标，metrics.Collector 实现此接口
type LLMRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// ProviderConfig ProviderEngine 配置
type ProviderConfig struct {
	// 默认模型，GenerateRequest.Model 为空时使用
	Model string
	// 推理设备，Accelerator 报告此值
	Device string
	// 温度参数
	Temperature float64
	// 系统提示词模板，必须包含一个 %s
	SystemPrompt string
}

// ProviderEngine 通过 llm.Provider 生成 JSON 片段
type ProviderEngine struct {
	provider  llm.Provider
	cfg       ProviderConfig
	tokenizer tokenizer.Tokenizer
	validator schema.Validator
	recorder  LLMRecorder
	logger    *zap.Logger
}

// ProviderOption 配置 ProviderEngine
type ProviderOption func(*ProviderEngine)

// WithTokenizer 固定分词器，未设置时按模型名查找，找不到则估算
func WithTokenizer(t tokenizer.Tokenizer) ProviderOption {
	return func(e *ProviderEngine) { e.tokenizer = t }
}

// WithFragmentValidator 设置片段校验器，nil 表示不校验
func WithFragmentValidator(v schema.Validator) ProviderOption {
	return func(e *ProviderEngine) { e.validator = v }
}

// WithLLMRecorder 设置指标接收者
func WithLLMRecorder(r LLMRecorder) ProviderOption {
	return func(e *ProviderEngine) { e.recorder = r }
}

// WithEngineLogger 设置日志
func WithEngineLogger(l *zap.Logger) ProviderOption {
	return func(e *ProviderEngine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewProviderEngine 创建引擎，默认使用 Draft-07 校验片段
func NewProviderEngine(p llm.Provider, cfg ProviderConfig, opts ...ProviderOption) *ProviderEngine {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	e := &ProviderEngine{
		provider:  p,
		cfg:       cfg,
		validator: schema.NewDraft07Validator(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"), zap.String("provider", p.Name()))
	return e
}

// Generate 生成一个子 schema 的片段
func (e *ProviderEngine) Generate(ctx context.Context, req *forge.GenerateRequest) (*forge.Record, error) {
	if req == nil || req.Schema == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "generate request has no schema")
	}
	model := req.Model
	if model == "" {
		model = e.cfg.Model
	}
	budget := req.MaxStringTokenLength
	if budget <= 0 {
		budget = forge.DefaultMaxStringTokenLength
	}

	schemaJSON, err := req.Schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode sub-schema: %w", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(e.cfg.SystemPrompt, schemaJSON)},
		{Role: llm.RoleUser, Content: req.Prompt},
	}

	maxTokens, err := e.completionBudget(model, messages, schemaJSON, budget)
	if err != nil {
		return nil, err
	}

	chatReq := &llm.ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(e.cfg.Temperature),
		ResponseFormat: &llm.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &llm.JSONSchemaFormat{
				Name:   formatName(schema.SubSchemaKey(req.Schema)),
				Schema: json.RawMessage(schemaJSON),
				Strict: true,
			},
		},
	}

	start := time.Now()
	resp, err := e.provider.Completion(ctx, chatReq)
	if err != nil {
		e.record(model, "error", start, nil)
		return nil, err
	}
	e.record(model, "success", start, resp)

	content, finish, ok := resp.FirstContent()
	if !ok {
		return nil, &llm.Error{Code: llm.ErrMalformedContent, Message: "response has no choices", Provider: e.provider.Name()}
	}
	if finish == "length" {
		return nil, &llm.Error{
			Code:     llm.ErrTruncated,
			Message:  fmt.Sprintf("output hit max_tokens=%d", maxTokens),
			Provider: e.provider.Name(),
		}
	}

	fragment, err := e.decode(req.Schema, content)
	if err != nil {
		e.logger.Debug("malformed fragment", zap.String("content", truncate(content, 256)), zap.Error(err))
		return nil, err
	}
	return fragment, nil
}

// completionBudget 计算 max_tokens 并确认 prompt 放得进上下文窗口
func (e *ProviderEngine) completionBudget(model string, messages []llm.Message, schemaJSON []byte, budget int) (int, error) {
	tok := e.tokenizer
	if tok == nil {
		tok = tokenizer.GetTokenizerOrEstimator(model)
	}

	// 结构开销：key、括号、引号，按 schema 文本粗估
	overhead, err := tok.CountTokens(string(schemaJSON))
	if err != nil {
		return 0, fmt.Errorf("count schema tokens: %w", err)
	}
	maxTokens := budget + overhead

	tmsgs := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		tmsgs[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	left, err := tokenizer.Remaining(tok, tmsgs, maxTokens)
	if err != nil {
		return 0, fmt.Errorf("count prompt tokens: %w", err)
	}
	if left < 0 {
		return 0, types.NewError(types.ErrContextTooLong,
			fmt.Sprintf("prompt exceeds the %d token context of %s by %d tokens", tok.MaxTokens(), model, -left))
	}
	return maxTokens, nil
}

// decode 提取 JSON 对象、去掉 schema 未声明的 key，再按子 schema 校验
func (e *ProviderEngine) decode(sub *schema.Node, content string) (*forge.Record, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return nil, &llm.Error{Code: llm.ErrMalformedContent, Message: "no JSON object in response", Provider: e.provider.Name()}
	}
	rec, err := forge.ParseRecord([]byte(raw))
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrMalformedContent, Message: err.Error(), Provider: e.provider.Name()}
	}

	fragment := forge.NewRecord()
	rec.Range(func(key string, value any) bool {
		if sub.Property(key) != nil {
			fragment.Set(key, value)
		} else {
			e.logger.Debug("dropping undeclared key", zap.String("key", key))
		}
		return true
	})

	if e.validator != nil {
		if err := e.validator.ValidateInstance(sub, fragment.Plain()); err != nil {
			return nil, types.WrapError(types.ErrSchemaInvalid, "fragment does not match sub-schema", err)
		}
	}
	return fragment, nil
}

func (e *ProviderEngine) record(model, status string, start time.Time, resp *llm.ChatResponse) {
	if e.recorder == nil {
		return
	}
	var prompt, completion int
	if resp != nil {
		prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}
	e.recorder.RecordLLMRequest(e.provider.Name(), model, status, time.Since(start), prompt, completion)
}

// Accelerator 报告配置的推理设备，后端不健康时返回错误
func (e *ProviderEngine) Accelerator(ctx context.Context) (string, error) {
	status, err := e.provider.HealthCheck(ctx)
	if err != nil {
		return "", fmt.Errorf("provider %s health check: %w", e.provider.Name(), err)
	}
	if !status.Healthy {
		return "", fmt.Errorf("provider %s is unhealthy", e.provider.Name())
	}
	return e.cfg.Device, nil
}

// Provider 返回底层 Provider
func (e *ProviderEngine) Provider() llm.Provider { return e.provider }

// =============================================================================
// 🔧 辅助函数
// =============================================================================

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractJSONObject 取出回复中的 JSON 对象，兼容 markdown 代码块和前后缀文字
func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if gjson.Valid(s) && gjson.Parse(s).IsObject() {
		return s
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	s = s[start : end+1]
	if !gjson.Valid(s) {
		return ""
	}
	return s
}

var nameRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// formatName response_format 的 name 只允许 [a-zA-Z0-9_-]，最长 64
func formatName(key string) string {
	name := nameRe.ReplaceAllString(key, "_")
	if name == "" || name == "_" {
		name = "fragment"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

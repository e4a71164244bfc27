package api

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/v-sekai/jsonforge/forge"
)

// =============================================================================
// 🧩 生成接口类型
// =============================================================================

// PredictRequest 生成请求。Jobs 非空时按顺序执行多组 prompt/schema，
// 共享同一个累积记录；否则使用 Prompt 与 Schema。
// @Description 生成请求结构
type PredictRequest struct {
	// 用户 prompt
	Prompt string `json:"prompt,omitempty" example:"Generate a wand."`
	// Draft-07 JSON Schema
	Schema json.RawMessage `json:"schema,omitempty"`
	// 多任务模式
	Jobs []Job `json:"jobs,omitempty"`
	// 覆盖服务端默认的 prompt 反馈策略
	PromptFeedback *bool `json:"prompt_feedback,omitempty"`
	// 以第一轮结果为 prompt 再跑一轮
	Refine bool `json:"refine,omitempty"`
	// 覆盖默认模型
	Model string `json:"model,omitempty" example:"gpt-4o-mini"`
	// 每个字符串字段的 token 上限
	MaxStringTokenLength int `json:"max_string_token_length,omitempty" example:"2048"`
}

// Job 多任务模式中的一组输入
type Job struct {
	Prompt string          `json:"prompt"`
	Schema json.RawMessage `json:"schema"`
}

// PredictResponse 生成结果
// @Description 生成响应结构
type PredictResponse struct {
	// 运行 ID（未启用存储时为空）
	RunID string `json:"run_id,omitempty"`
	// 合并后的 JSON，保持 key 的生成顺序
	Result *forge.Record `json:"result"`
	// 最终 prompt（含反馈追加）
	Prompt string `json:"prompt"`
	// 子 schema 数量
	SubSchemas int `json:"sub_schemas"`
	// 成功生成的子 schema 数量
	Generated int `json:"generated"`
	// 被跳过的子 schema
	Skipped []forge.SkipRecord `json:"skipped,omitempty"`
	// 追加到 prompt 的 key
	FedBack []string `json:"fed_back,omitempty"`
	// 耗时（毫秒）
	DurationMS int64 `json:"duration_ms"`
	// Refine 模式下第一轮的结果
	First *PredictResponse `json:"first,omitempty"`
}

// NewPredictResponse 从 forge.Result 构造响应
func NewPredictResponse(runID string, res *forge.Result) *PredictResponse {
	if res == nil {
		return nil
	}
	resp := &PredictResponse{
		RunID:      runID,
		Result:     res.Record,
		Prompt:     res.Prompt,
		SubSchemas: res.SubSchemas,
		Generated:  res.Generated,
		Skipped:    res.Skipped,
		FedBack:    res.FedBack,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.First != nil {
		resp.First = NewPredictResponse("", res.First)
	}
	return resp
}

// =============================================================================
// 🔪 分解接口类型
// =============================================================================

// DecomposeRequest 分解请求
type DecomposeRequest struct {
	Schema json.RawMessage `json:"schema"`
}

// DecomposeResponse 分解结果
type DecomposeResponse struct {
	// 子 schema，按生成顺序
	SubSchemas []json.RawMessage `json:"sub_schemas"`
	// 每个子 schema 的叶子 key
	Leaves []string `json:"leaves"`
}

// =============================================================================
// 📜 运行记录类型
// =============================================================================

// Run 历史运行
type Run struct {
	ID             string             `json:"id"`
	Mode           string             `json:"mode"`
	Status         string             `json:"status"`
	Model          string             `json:"model,omitempty"`
	Prompt         string             `json:"prompt"`
	FinalPrompt    string             `json:"final_prompt,omitempty"`
	Schema         json.RawMessage    `json:"schema,omitempty"`
	Result         json.RawMessage    `json:"result,omitempty"`
	Skipped        []forge.SkipRecord `json:"skipped,omitempty"`
	FedBack        []string           `json:"fed_back,omitempty"`
	PromptFeedback bool               `json:"prompt_feedback"`
	SubSchemas     int                `json:"sub_schemas"`
	Generated      int                `json:"generated"`
	Error          string             `json:"error,omitempty"`
	DurationMS     int64              `json:"duration_ms"`
	CreatedAt      time.Time          `json:"created_at"`
}

// RunList 分页结果
type RunList struct {
	Runs   []Run `json:"runs"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

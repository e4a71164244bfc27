package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/api"
	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 🧩 生成接口 Handler
// =============================================================================

// RunRecorder 接收每次运行的结果，metrics.Collector 实现此接口
type RunRecorder interface {
	RecordRun(mode, status string, d time.Duration)
}

// ForgeOption 配置 ForgeHandler
type ForgeOption func(*ForgeHandler)

// WithRunStore 持久化每次运行，nil 表示不保存
func WithRunStore(s store.RunStore) ForgeOption {
	return func(h *ForgeHandler) { h.runs = s }
}

// WithRunRecorder 设置运行指标记录器
func WithRunRecorder(r RunRecorder) ForgeOption {
	return func(h *ForgeHandler) { h.recorder = r }
}

// WithDefaultModel 设置请求未指定模型时记录的模型名
func WithDefaultModel(model string) ForgeOption {
	return func(h *ForgeHandler) { h.model = model }
}

// WithInputValidator 替换输入 schema 校验器，nil 表示不校验
func WithInputValidator(v schema.Validator) ForgeOption {
	return func(h *ForgeHandler) { h.validator = v }
}

// ForgeHandler 处理 predict 与 decompose 请求
type ForgeHandler struct {
	pipeline  *forge.Pipeline
	validator schema.Validator
	runs      store.RunStore
	recorder  RunRecorder
	model     string
	logger    *zap.Logger
}

// NewForgeHandler 创建处理器，默认用 Draft-07 校验输入 schema
func NewForgeHandler(pipeline *forge.Pipeline, logger *zap.Logger, opts ...ForgeOption) *ForgeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ForgeHandler{
		pipeline:  pipeline,
		validator: schema.NewDraft07Validator(),
		logger:    logger.With(zap.String("component", "forge_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandlePredict 按 schema 逐片段生成并返回合并后的 JSON
// @Summary 生成 JSON
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.PredictRequest true "生成请求"
// @Success 200 {object} api.PredictResponse "生成结果"
// @Failure 400 {object} Response "无效请求或 schema"
// @Failure 502 {object} Response "生成失败"
// @Security ApiKeyAuth
// @Router /api/v1/predict [post]
func (h *ForgeHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.PredictRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	jobs, apiErr := h.buildJobs(&req)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	var opts []forge.Option
	if req.PromptFeedback != nil {
		opts = append(opts, forge.WithPromptFeedback(*req.PromptFeedback))
	}
	if req.Model != "" {
		opts = append(opts, forge.WithModel(req.Model))
	}
	if req.MaxStringTokenLength > 0 {
		opts = append(opts, forge.WithMaxStringTokenLength(req.MaxStringTokenLength))
	}
	pipeline := h.pipeline
	if len(opts) > 0 {
		pipeline = pipeline.Derive(opts...)
	}

	mode := store.ModeSingle
	switch {
	case len(req.Jobs) > 0:
		mode = store.ModeBatch
	case req.Refine:
		mode = store.ModeRefine
	}

	start := time.Now()
	var (
		res *forge.Result
		err error
	)
	switch mode {
	case store.ModeRefine:
		res, err = pipeline.Refine(r.Context(), jobs[0].Prompt, jobs[0].Schema)
	default:
		res, err = pipeline.RunAll(r.Context(), jobs)
	}
	elapsed := time.Since(start)

	status := store.StatusSucceeded
	if err != nil {
		status = store.StatusFailed
	}
	if h.recorder != nil {
		h.recorder.RecordRun(mode, status, elapsed)
	}

	model := req.Model
	if model == "" {
		model = h.model
	}
	runID := h.saveRun(r.Context(), mode, model, jobs, pipeline.PromptFeedback(), res, err, elapsed)

	if err != nil {
		WriteError(w, classifyRunError(err), h.logger)
		return
	}

	h.logger.Info("prediction completed",
		zap.String("mode", mode),
		zap.String("run_id", runID),
		zap.Int("sub_schemas", res.SubSchemas),
		zap.Int("generated", res.Generated),
		zap.Int("skipped", len(res.Skipped)),
		zap.Duration("duration", elapsed))

	WriteSuccess(w, api.NewPredictResponse(runID, res))
}

// HandleDecompose 返回 schema 的子 schema 列表，不调用引擎
// @Summary 分解 schema
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.DecomposeRequest true "分解请求"
// @Success 200 {object} api.DecomposeResponse "子 schema"
// @Failure 400 {object} Response "无效 schema"
// @Security ApiKeyAuth
// @Router /api/v1/decompose [post]
func (h *ForgeHandler) HandleDecompose(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.DecomposeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	root, apiErr := h.parseSchema(req.Schema, "schema")
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	subs := schema.Decompose(root)
	resp := api.DecomposeResponse{
		SubSchemas: make([]json.RawMessage, 0, len(subs)),
		Leaves:     schema.LeafNames(subs),
	}
	for _, sub := range subs {
		raw, err := sub.MarshalJSON()
		if err != nil {
			WriteAnyError(w, fmt.Errorf("encode sub-schema: %w", err), h.logger)
			return
		}
		resp.SubSchemas = append(resp.SubSchemas, raw)
	}
	WriteSuccess(w, resp)
}

func (h *ForgeHandler) buildJobs(req *api.PredictRequest) ([]forge.Job, *types.Error) {
	if req.MaxStringTokenLength < 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "max_string_token_length must be positive")
	}
	if len(req.Jobs) == 0 {
		if len(req.Schema) == 0 {
			return nil, types.NewError(types.ErrInvalidRequest, "schema is required")
		}
		root, err := h.parseSchema(req.Schema, "schema")
		if err != nil {
			return nil, err
		}
		return []forge.Job{{Prompt: req.Prompt, Schema: root}}, nil
	}

	if len(req.Schema) > 0 || req.Prompt != "" {
		return nil, types.NewError(types.ErrInvalidRequest, "use either prompt/schema or jobs, not both")
	}
	if req.Refine {
		return nil, types.NewError(types.ErrInvalidRequest, "refine is not supported with jobs")
	}
	jobs := make([]forge.Job, 0, len(req.Jobs))
	for i, j := range req.Jobs {
		root, err := h.parseSchema(j.Schema, fmt.Sprintf("jobs[%d].schema", i))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, forge.Job{Prompt: j.Prompt, Schema: root})
	}
	return jobs, nil
}

// parseSchema 解析并校验输入 schema，失败时返回 400
func (h *ForgeHandler) parseSchema(raw json.RawMessage, field string) (*schema.Node, *types.Error) {
	if len(raw) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, field+" is required")
	}
	root, err := schema.Parse(raw)
	if err != nil {
		return nil, types.NewError(types.ErrSchemaInvalid, field+" is not valid JSON").WithCause(err)
	}
	if h.validator != nil {
		if err := h.validator.ValidateSchema(root); err != nil {
			return nil, types.NewError(types.ErrSchemaInvalid, field+" is not a valid Draft-07 schema").WithCause(err)
		}
	}
	return root, nil
}

func (h *ForgeHandler) saveRun(ctx context.Context, mode, model string, jobs []forge.Job, feedback bool, res *forge.Result, runErr error, elapsed time.Duration) string {
	if h.runs == nil {
		return ""
	}

	prompt, root := jobs[0].Prompt, jobs[0].Schema
	if mode == store.ModeBatch {
		prompts := make([]string, len(jobs))
		for i, j := range jobs {
			prompts[i] = j.Prompt
		}
		prompt = strings.Join(prompts, "\n")
		root = nil
	}

	run, err := store.NewRun(mode, model, prompt, root, feedback, res, runErr)
	if err != nil {
		h.logger.Warn("run not recorded", zap.Error(err))
		return ""
	}
	if mode == store.ModeBatch {
		run.Schema = batchSchemas(jobs)
	}
	if res == nil {
		run.DurationMS = elapsed.Milliseconds()
	}

	// 请求被取消时仍然记录失败的运行
	if err := h.runs.Save(context.WithoutCancel(ctx), run); err != nil {
		h.logger.Warn("run not recorded", zap.String("run_id", run.ID), zap.Error(err))
		return ""
	}
	return run.ID
}

func batchSchemas(jobs []forge.Job) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, j := range jobs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(j.Schema.String())
	}
	b.WriteByte(']')
	return b.String()
}

// classifyRunError 将运行错误映射为 API 错误
func classifyRunError(err error) *types.Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "generation timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrServiceUnavailable, "request cancelled").WithCause(err)
	}
	if e, ok := types.AsError(err); ok {
		return e
	}
	return types.NewError(types.ErrInternalError, "generation failed").WithCause(err)
}

package handlers

import (
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/api"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 📜 运行记录 Handler
// =============================================================================

// RunsHandler 查询历史运行
type RunsHandler struct {
	runs   store.RunStore
	logger *zap.Logger
}

// NewRunsHandler 创建运行记录处理器
func NewRunsHandler(runs store.RunStore, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{runs: runs, logger: logger.With(zap.String("component", "runs_handler"))}
}

// HandleGet 返回单次运行
// @Summary 查询运行
// @Tags 运行记录
// @Produce json
// @Param id path string true "运行 ID"
// @Success 200 {object} api.Run "运行记录"
// @Failure 404 {object} Response "不存在"
// @Security ApiKeyAuth
// @Router /api/v1/runs/{id} [get]
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "run id is required", h.logger)
		return
	}
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, toAPIRun(run))
}

// HandleList 分页列出运行，支持 limit、offset、status 查询参数
// @Summary 列出运行
// @Tags 运行记录
// @Produce json
// @Param limit query int false "每页数量"
// @Param offset query int false "偏移"
// @Param status query string false "succeeded 或 failed"
// @Success 200 {object} api.RunList "运行列表"
// @Security ApiKeyAuth
// @Router /api/v1/runs [get]
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{Status: q.Get("status")}

	var err error
	if opts.Limit, err = intParam(q.Get("limit"), store.DefaultListLimit); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "limit must be a non-negative integer", h.logger)
		return
	}
	if opts.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "offset must be a non-negative integer", h.logger)
		return
	}
	switch opts.Status {
	case "", store.StatusSucceeded, store.StatusFailed:
	default:
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "status must be succeeded or failed", h.logger)
		return
	}
	if opts.Limit > store.MaxListLimit {
		opts.Limit = store.MaxListLimit
	}

	runs, total, err := h.runs.List(r.Context(), opts)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	out := api.RunList{
		Runs:   make([]api.Run, 0, len(runs)),
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range runs {
		out.Runs = append(out.Runs, toAPIRun(&runs[i]))
	}
	WriteSuccess(w, out)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}

func toAPIRun(run *store.Run) api.Run {
	out := api.Run{
		ID:             run.ID,
		Mode:           run.Mode,
		Status:         run.Status,
		Model:          run.Model,
		Prompt:         run.Prompt,
		FinalPrompt:    run.FinalPrompt,
		PromptFeedback: run.Feedback,
		SubSchemas:     run.SubSchemas,
		Generated:      run.Generated,
		Error:          run.Error,
		DurationMS:     run.DurationMS,
		CreatedAt:      run.CreatedAt,
	}
	if run.Schema != "" {
		out.Schema = json.RawMessage(run.Schema)
	}
	if run.Result != "" {
		out.Result = json.RawMessage(run.Result)
	}
	// 存储的列表字段由 NewRun 编码，解码失败时省略
	if run.Skipped != "" {
		_ = json.Unmarshal([]byte(run.Skipped), &out.Skipped)
	}
	if run.FedBack != "" {
		_ = json.Unmarshal([]byte(run.FedBack), &out.FedBack)
	}
	return out
}

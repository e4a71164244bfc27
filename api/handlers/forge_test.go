package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/testutil/fixtures"
	"github.com/v-sekai/jsonforge/testutil/mocks"
	"github.com/v-sekai/jsonforge/types"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

// memRunStore 内存版 RunStore
type memRunStore struct {
	mu      sync.Mutex
	runs    []store.Run
	saveErr error
}

func (s *memRunStore) Save(_ context.Context, run *store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memRunStore) Get(_ context.Context, id string) (*store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			run := s.runs[i]
			return &run, nil
		}
	}
	return nil, types.NewError(types.ErrNotFound, "run "+id+" not found")
}

func (s *memRunStore) List(_ context.Context, opts store.ListOptions) ([]store.Run, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []store.Run
	for _, r := range s.runs {
		if opts.Status == "" || r.Status == opts.Status {
			matched = append(matched, r)
		}
	}
	total := int64(len(matched))
	if opts.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(matched) {
		matched = matched[:opts.Limit]
	}
	return matched, total, nil
}

func (s *memRunStore) last(t *testing.T) store.Run {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.runs)
	return s.runs[len(s.runs)-1]
}

type runRecorder struct {
	mu    sync.Mutex
	modes []string
	stats []string
}

func (r *runRecorder) RecordRun(mode, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	r.stats = append(r.stats, status)
}

type predictEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		RunID      string             `json:"run_id"`
		Result     json.RawMessage    `json:"result"`
		Prompt     string             `json:"prompt"`
		SubSchemas int                `json:"sub_schemas"`
		Generated  int                `json:"generated"`
		Skipped    []forge.SkipRecord `json:"skipped"`
		FedBack    []string           `json:"fed_back"`
		First      *struct {
			Result json.RawMessage `json:"result"`
		} `json:"first"`
	} `json:"data"`
	Error *ErrorInfo `json:"error"`
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf []byte
	switch v := body.(type) {
	case string:
		buf = []byte(v)
	default:
		var err error
		buf, err = json.Marshal(v)
		require.NoError(t, err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewReader(buf))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func decodePredict(t *testing.T, w *httptest.ResponseRecorder) predictEnvelope {
	t.Helper()
	var env predictEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

// =============================================================================
// 🧪 Predict 测试
// =============================================================================

func TestForgeHandler_PredictWand(t *testing.T) {
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", int64(5))
	runs := &memRunStore{}
	rec := &runRecorder{}
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop(),
		WithRunStore(runs), WithRunRecorder(rec), WithDefaultModel("test-model"))

	w := postJSON(t, h.HandlePredict, map[string]any{
		"prompt": "Generate a wand.",
		"schema": json.RawMessage(fixtures.WandSchema),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodePredict(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, `{"name":"Wand","price":5}`, string(env.Data.Result))
	assert.Equal(t, 2, env.Data.SubSchemas)
	assert.Equal(t, 2, env.Data.Generated)
	assert.Equal(t, "Generate a wand.", env.Data.Prompt)
	assert.NotEmpty(t, env.Data.RunID)

	run := runs.last(t)
	assert.Equal(t, env.Data.RunID, run.ID)
	assert.Equal(t, store.ModeSingle, run.Mode)
	assert.Equal(t, store.StatusSucceeded, run.Status)
	assert.Equal(t, "test-model", run.Model)
	assert.Equal(t, `{"name":"Wand","price":5}`, run.Result)
	assert.Equal(t, []string{store.ModeSingle}, rec.modes)
	assert.Equal(t, []string{store.StatusSucceeded}, rec.stats)
}

func TestForgeHandler_PredictKeepsSchemaOrder(t *testing.T) {
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop())

	w := postJSON(t, h.HandlePredict, `{"prompt":"p","schema":{"type":"object","properties":{"zeta":{"type":"boolean"},"alpha":{"type":"integer"}}}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `{"zeta":false,"alpha":0}`, string(decodePredict(t, w).Data.Result))
}

func TestForgeHandler_PredictEmptySchema(t *testing.T) {
	engine := mocks.NewMockEngine()
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop())

	w := postJSON(t, h.HandlePredict, `{"prompt":"p","schema":{}}`)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodePredict(t, w)
	assert.Equal(t, `{}`, string(env.Data.Result))
	assert.Zero(t, env.Data.SubSchemas)
	assert.Empty(t, engine.Calls())
}

func TestForgeHandler_PredictBatchWithFeedback(t *testing.T) {
	engine := mocks.NewMockEngine().WithValue("name", "Wand").WithValue("price", int64(5))
	runs := &memRunStore{}
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop(), WithRunStore(runs))

	w := postJSON(t, h.HandlePredict, map[string]any{
		"jobs": []map[string]any{
			{"prompt": "first", "schema": json.RawMessage(fixtures.WandSchema)},
			{"prompt": "second", "schema": json.RawMessage(fixtures.WandSchema)},
		},
		"prompt_feedback": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodePredict(t, w)
	assert.Equal(t, `{"name":"Wand","price":5}`, string(env.Data.Result))
	assert.Equal(t, "second name: Wand price: 5", env.Data.Prompt)
	assert.Equal(t, []string{"name", "price"}, env.Data.FedBack)
	assert.Equal(t, []string{"first", "first", "second", "second name: Wand"}, engine.Prompts())

	run := runs.last(t)
	assert.Equal(t, store.ModeBatch, run.Mode)
	assert.True(t, run.Feedback)
	assert.Equal(t, "first\nsecond", run.Prompt)
	assert.JSONEq(t, `[`+fixtures.WandSchema+`,`+fixtures.WandSchema+`]`, run.Schema)
}

func TestForgeHandler_PredictRefine(t *testing.T) {
	engine := mocks.NewMockEngine().WithValue("name", "Wand")
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop())

	w := postJSON(t, h.HandlePredict, map[string]any{
		"prompt": "p",
		"schema": json.RawMessage(fixtures.WandSchema),
		"refine": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decodePredict(t, w)
	require.NotNil(t, env.Data.First)
	assert.Equal(t, `{"name":"Wand","price":0}`, string(env.Data.First.Result))
	// 第二轮以第一轮的 JSON 为 prompt
	prompts := engine.Prompts()
	require.Len(t, prompts, 4)
	assert.Equal(t, `{"name":"Wand","price":0}`, prompts[2])
}

func TestForgeHandler_PredictOverrides(t *testing.T) {
	engine := mocks.NewMockEngine()
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop())

	w := postJSON(t, h.HandlePredict, map[string]any{
		"prompt":                  "p",
		"schema":                  json.RawMessage(fixtures.WandSchema),
		"model":                   "other-model",
		"max_string_token_length": 64,
	})
	require.Equal(t, http.StatusOK, w.Code)
	for _, call := range engine.Calls() {
		assert.Equal(t, "other-model", call.Model)
		assert.Equal(t, 64, call.MaxStringTokenLength)
	}
}

func TestForgeHandler_PredictInvalidRequests(t *testing.T) {
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop())

	tests := []struct {
		name     string
		body     string
		wantCode types.ErrorCode
	}{
		{"missing schema", `{"prompt":"p"}`, types.ErrInvalidRequest},
		{"draft-07 violation", `{"prompt":"p","schema":{"type":"object","properties":{"a":{"type":"strnig"}}}}`, types.ErrSchemaInvalid},
		{"bad required", `{"prompt":"p","schema":{"type":"object","required":"a"}}`, types.ErrSchemaInvalid},
		{"schema and jobs", `{"prompt":"p","schema":{},"jobs":[{"prompt":"q","schema":{}}]}`, types.ErrInvalidRequest},
		{"refine with jobs", `{"refine":true,"jobs":[{"prompt":"q","schema":{}}]}`, types.ErrInvalidRequest},
		{"invalid job schema", `{"jobs":[{"prompt":"q","schema":{"type":5}}]}`, types.ErrSchemaInvalid},
		{"negative budget", `{"prompt":"p","schema":{},"max_string_token_length":-1}`, types.ErrInvalidRequest},
		{"unknown field", `{"prompt":"p","schema":{},"temperature":1}`, types.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.HandlePredict, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decodePredict(t, w)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tt.wantCode), env.Error.Code)
		})
	}
}

func TestForgeHandler_PredictWrongContentType(t *testing.T) {
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop())
	r := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewBufferString(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.HandlePredict(w, r)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestForgeHandler_PredictGenerationFailure(t *testing.T) {
	engine := mocks.NewMockEngine().WithError("price", errors.New("backend down"))
	runs := &memRunStore{}
	rec := &runRecorder{}
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop(), WithRunStore(runs), WithRunRecorder(rec))

	w := postJSON(t, h.HandlePredict, map[string]any{"prompt": "p", "schema": json.RawMessage(fixtures.WandSchema)})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	env := decodePredict(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(types.ErrGeneration), env.Error.Code)
	// 服务端错误不回显上游原因
	assert.Empty(t, env.Error.Details)

	run := runs.last(t)
	assert.Equal(t, store.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "backend down")
	assert.Equal(t, []string{store.StatusFailed}, rec.stats)
}

func TestForgeHandler_PredictAcceleratorRequired(t *testing.T) {
	p := forge.NewPipeline(mocks.NewMockEngine(), forge.WithRequireAccelerator(true))
	h := NewForgeHandler(p, zap.NewNop())

	w := postJSON(t, h.HandlePredict, map[string]any{"prompt": "p", "schema": json.RawMessage(fixtures.WandSchema)})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, string(types.ErrAcceleratorUnavailable), decodePredict(t, w).Error.Code)
}

func TestForgeHandler_PredictTimeout(t *testing.T) {
	engine := forge.EngineFunc(func(ctx context.Context, _ *forge.GenerateRequest) (*forge.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := NewForgeHandler(forge.NewPipeline(engine), zap.NewNop())

	body, err := json.Marshal(map[string]any{"prompt": "p", "schema": json.RawMessage(fixtures.WandSchema)})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/predict", bytes.NewReader(body)).WithContext(ctx)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandlePredict(w, r)

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestForgeHandler_StoreFailureDoesNotFailRequest(t *testing.T) {
	runs := &memRunStore{saveErr: errors.New("disk full")}
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop(), WithRunStore(runs))

	w := postJSON(t, h.HandlePredict, map[string]any{"prompt": "p", "schema": json.RawMessage(fixtures.WandSchema)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodePredict(t, w).Data.RunID)
}

// =============================================================================
// 🧪 Decompose 测试
// =============================================================================

func TestForgeHandler_Decompose(t *testing.T) {
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop())

	body := `{"schema":{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"object","properties":{"c":{"type":"integer"}},"required":["c"]}},"required":["a","b"]}}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/decompose", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleDecompose(w, r)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var env struct {
		Data struct {
			SubSchemas []json.RawMessage `json:"sub_schemas"`
			Leaves     []string          `json:"leaves"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, []string{"a", "c"}, env.Data.Leaves)
	require.Len(t, env.Data.SubSchemas, 2)
	assert.JSONEq(t, `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"a":{"type":"string"}},"required":["a"]}`, string(env.Data.SubSchemas[0]))
	assert.JSONEq(t, `{"$schema":"http://json-schema.org/draft-07/schema#","type":"object","properties":{"c":{"type":"integer"}},"required":["c"]}`, string(env.Data.SubSchemas[1]))
}

func TestForgeHandler_DecomposeInvalid(t *testing.T) {
	h := NewForgeHandler(forge.NewPipeline(mocks.NewMockEngine()), zap.NewNop())

	for _, body := range []string{`{}`, `{"schema":{"type":"object","required":"x"}}`} {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/decompose", bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		h.HandleDecompose(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

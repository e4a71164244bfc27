package forge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

// scriptedEngine answers each sub-schema by its key.
type scriptedEngine struct {
	mu       sync.Mutex
	answers  map[string]*Record
	errs     map[string]error
	requests []*GenerateRequest
	device   string
	onCall   func(key string)
}

func newScriptedEngine(answers map[string]*Record) *scriptedEngine {
	return &scriptedEngine{answers: answers, errs: map[string]error{}}
}

func (e *scriptedEngine) Generate(ctx context.Context, req *GenerateRequest) (*Record, error) {
	key := schema.SubSchemaKey(req.Schema)
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.onCall != nil {
		e.onCall(key)
	}
	if err := e.errs[key]; err != nil {
		return nil, err
	}
	if r, ok := e.answers[key]; ok {
		return r.Clone(), nil
	}
	return RecordOf(key, "generated "+key), nil
}

func (e *scriptedEngine) Accelerator(context.Context) (string, error) {
	return e.device, nil
}

func (e *scriptedEngine) prompts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.requests))
	for i, r := range e.requests {
		out[i] = r.Prompt
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	feedback int
}

func (r *countingRecorder) ObserveSubSchema(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[outcome]++
}

func (r *countingRecorder) ObserveFeedback(keys int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback += keys
}

const productSchema = `{"type":"object","properties":{"name":{"type":"string"},"price":{"type":"integer"}},"required":["name"]}`

func TestPipeline_EndToEnd(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{
		"name":  RecordOf("name", "Wand"),
		"price": RecordOf("price", 5),
	})
	p := NewPipeline(engine, WithLogger(zap.NewNop()))

	res, err := p.Run(context.Background(), "A magic shop item.", schema.MustParse(productSchema))
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Wand","price":5}`, res.Record.String())
	assert.Equal(t, 2, res.SubSchemas)
	assert.Equal(t, 2, res.Generated)
	assert.Empty(t, res.Skipped)

	require.Len(t, engine.requests, 2)
	assert.Equal(t, []string{"name"}, engine.requests[0].Schema.Required())
	assert.Nil(t, engine.requests[1].Schema.Required())
	assert.Equal(t, DefaultMaxStringTokenLength, engine.requests[0].MaxStringTokenLength)
}

func TestPipeline_EmptySchema(t *testing.T) {
	engine := newScriptedEngine(nil)
	p := NewPipeline(engine)

	res, err := p.Run(context.Background(), "p", schema.MustParse(`{"type":"object"}`))
	require.NoError(t, err)

	assert.Equal(t, "{}", res.Record.String())
	assert.Equal(t, 0, res.SubSchemas)
	assert.Empty(t, engine.requests)
}

func TestPipeline_PromptFeedback(t *testing.T) {
	// The engine repeats "name" in the second fragment.
	engine := newScriptedEngine(map[string]*Record{
		"name":  RecordOf("name", "Wand"),
		"price": RecordOf("price", 5, "name", "Staff"),
		"stock": RecordOf("stock", 1),
	})
	root := schema.MustParse(`{"properties":{"name":{"type":"string"},"price":{"type":"integer"},"stock":{"type":"integer"}}}`)
	rec := &countingRecorder{}

	on, err := NewPipeline(engine, WithPromptFeedback(true), WithRecorder(rec)).Run(context.Background(), "Item.", root)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Wand","price":5,"stock":1}`, on.Record.String())
	assert.Equal(t, "Item. name: Staff", on.Prompt)
	assert.Equal(t, []string{"name"}, on.FedBack)
	assert.Equal(t, []string{"Item.", "Item.", "Item. name: Staff"}, engine.prompts())
	assert.Equal(t, 1, rec.feedback)

	engine.requests = nil
	off, err := NewPipeline(engine).Run(context.Background(), "Item.", root)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Staff","price":5,"stock":1}`, off.Record.String())
	assert.Equal(t, "Item.", off.Prompt)
	assert.Empty(t, off.FedBack)
}

func TestPipeline_EngineFailureIsFatal(t *testing.T) {
	boom := errors.New("token budget exhausted inside string")
	engine := newScriptedEngine(nil)
	engine.errs["price"] = boom
	rec := &countingRecorder{}

	root := schema.MustParse(`{"properties":{"name":{"type":"string"},"price":{"type":"integer"},"never":{"type":"string"}}}`)
	res, err := NewPipeline(engine, WithRecorder(rec)).Run(context.Background(), "p", root)

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, types.IsCode(err, types.ErrGeneration))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, engine.requests, 2)
	assert.Equal(t, 1, rec.outcomes[OutcomeFailed])
}

func TestPipeline_SubSchemaValidationSkips(t *testing.T) {
	engine := newScriptedEngine(nil)
	rec := &countingRecorder{}
	root := schema.MustParse(`{"properties":{"bad":{"type":"strin"},"good":{"type":"string"}}}`)

	res, err := NewPipeline(engine, WithSubSchemaValidation(true), WithRecorder(rec)).
		Run(context.Background(), "p", root)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "bad", res.Skipped[0].Key)
	assert.Equal(t, StageSubSchema, res.Skipped[0].Stage)
	assert.Equal(t, []string{"good"}, res.Record.Keys())
	assert.Len(t, engine.requests, 1)
	assert.Equal(t, 1, rec.outcomes[OutcomeSkippedSchema])
	assert.Equal(t, 1, rec.outcomes[OutcomeGenerated])
}

func TestPipeline_FragmentValidationSkips(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{
		"name":  RecordOf("name", "Wa"),
		"price": RecordOf("price", 5),
	})
	root := schema.MustParse(`{"properties":{"name":{"type":"string","minLength":3},"price":{"type":"integer"}}}`)

	res, err := NewPipeline(engine, WithFragmentValidation(true)).Run(context.Background(), "p", root)
	require.NoError(t, err)

	require.Len(t, res.Skipped, 1)
	assert.Equal(t, StageFragment, res.Skipped[0].Stage)
	assert.Equal(t, `{"price":5}`, res.Record.String())
}

func TestPipeline_FragmentValidationAcceptsNativeValues(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{
		"tags":  RecordOf("tags", []string{"a", "b"}),
		"attrs": RecordOf("attrs", map[string]string{"k": "v"}),
	})
	root := schema.MustParse(`{"properties":{"tags":{"type":"array","items":{"type":"string"}},"attrs":{"type":"object","additionalProperties":{"type":"string"}}}}`)

	res, err := NewPipeline(engine, WithFragmentValidation(true)).Run(context.Background(), "p", root)
	require.NoError(t, err)

	assert.Empty(t, res.Skipped)
	assert.Equal(t, `{"tags":["a","b"],"attrs":{"k":"v"}}`, res.Record.String())
}

func TestPipeline_CancellationBetweenSubSchemas(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := newScriptedEngine(nil)
	engine.onCall = func(key string) {
		if key == "b" {
			cancel()
		}
	}
	root := schema.MustParse(`{"properties":{"a":{"type":"string"},"b":{"type":"string"},"c":{"type":"string"}}}`)

	_, err := NewPipeline(engine).Run(ctx, "p", root)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	// The in-flight call for "b" completes; "c" is never started.
	assert.Len(t, engine.requests, 2)
}

func TestPipeline_RequireAccelerator(t *testing.T) {
	cpu := newScriptedEngine(nil)
	cpu.device = "cpu"

	_, err := NewPipeline(cpu, WithRequireAccelerator(true)).Run(context.Background(), "p", schema.MustParse(productSchema))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAcceleratorUnavailable))
	assert.Empty(t, cpu.requests)

	gpu := newScriptedEngine(nil)
	gpu.device = "cuda:0"
	_, err = NewPipeline(gpu, WithRequireAccelerator(true)).Run(context.Background(), "p", schema.MustParse(productSchema))
	assert.NoError(t, err)

	plain := EngineFunc(func(context.Context, *GenerateRequest) (*Record, error) { return NewRecord(), nil })
	assert.Error(t, CheckAccelerator(context.Background(), plain))
}

func TestPipeline_RunAllSharesAccumulator(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{
		"name": RecordOf("name", "Hoshi"),
		"bio":  RecordOf("bio", "Sings."),
	})
	jobs := []Job{
		{Prompt: "first", Schema: schema.MustParse(`{"properties":{"name":{"type":"string"}}}`)},
		{Prompt: "second", Schema: schema.MustParse(`{"properties":{"name":{"type":"string"},"bio":{"type":"string"}}}`)},
	}

	res, err := NewPipeline(engine, WithPromptFeedback(true)).RunAll(context.Background(), jobs)
	require.NoError(t, err)

	assert.Equal(t, `{"name":"Hoshi","bio":"Sings."}`, res.Record.String())
	assert.Equal(t, []string{"first", "second", "second name: Hoshi"}, engine.prompts())
	assert.Equal(t, 3, res.SubSchemas)
}

func TestPipeline_RunAllCarriesFeedbackToLaterJobs(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{"a": RecordOf("a", "x")})
	root := schema.MustParse(`{"properties":{"a":{"type":"string"}}}`)
	jobs := []Job{
		{Prompt: "one", Schema: root},
		{Prompt: "two", Schema: root},
		{Prompt: "three", Schema: root},
		{Prompt: "four", Schema: root},
	}

	res, err := NewPipeline(engine, WithPromptFeedback(true)).RunAll(context.Background(), jobs)
	require.NoError(t, err)

	// "a" repeats during job two; every later job starts with the augmentation.
	assert.Equal(t, []string{"one", "two", "three a: x", "four a: x"}, engine.prompts())
	assert.Equal(t, "four a: x", res.Prompt)
	assert.Equal(t, []string{"a"}, res.FedBack)
	assert.Equal(t, `{"a":"x"}`, res.Record.String())
}

func TestPipeline_Refine(t *testing.T) {
	engine := newScriptedEngine(map[string]*Record{
		"name":  RecordOf("name", "Wand"),
		"price": RecordOf("price", 5),
	})

	res, err := NewPipeline(engine).Refine(context.Background(), "shop", schema.MustParse(productSchema))
	require.NoError(t, err)

	require.NotNil(t, res.First)
	assert.Equal(t, `{"name":"Wand","price":5}`, res.First.Record.String())
	prompts := engine.prompts()
	require.Len(t, prompts, 4)
	assert.Equal(t, `{"name":"Wand","price":5}`, prompts[2])
}

func TestPipeline_DeriveOverridesFeedback(t *testing.T) {
	base := NewPipeline(newScriptedEngine(nil), WithMaxStringTokenLength(64))
	derived := base.Derive(WithPromptFeedback(true))

	assert.False(t, base.PromptFeedback())
	assert.True(t, derived.PromptFeedback())
	assert.Equal(t, 64, derived.maxStringTokenLength)
}

func TestPipeline_Spans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	p := NewPipeline(newScriptedEngine(nil), WithTracer(tp.Tracer("test")))
	_, err := p.Run(context.Background(), "p", schema.MustParse(productSchema))
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range sr.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["forge.run"])
	assert.Equal(t, 2, counts["forge.sub_schema"])
	assert.Equal(t, 2, counts["forge.generate"])
}

package forge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/types"
)

const instrumentationName = "github.com/v-sekai/jsonforge/forge"

// Sub-schema outcomes reported to a Recorder.
const (
	OutcomeGenerated       = "generated"
	OutcomeSkippedSchema   = "skipped_schema"
	OutcomeSkippedFragment = "skipped_fragment"
	OutcomeFailed          = "failed"
)

// SkipStage names where a sub-schema was dropped.
type SkipStage string

const (
	StageSubSchema SkipStage = "sub_schema"
	StageFragment  SkipStage = "fragment"
)

// SkipRecord describes one sub-schema dropped by skip-and-log.
type SkipRecord struct {
	Job    int       `json:"job"`
	Key    string    `json:"key"`
	Stage  SkipStage `json:"stage"`
	Reason string    `json:"reason"`
}

// Job is one prompt/schema pair of a multi-job pass.
type Job struct {
	Prompt string
	Schema *schema.Node
}

// Result is the outcome of a pass.
type Result struct {
	Record     *Record
	Prompt     string
	SubSchemas int
	Generated  int
	Skipped    []SkipRecord
	FedBack    []string
	Duration   time.Duration
	// First is the initial pass of Refine, nil otherwise.
	First *Result
}

// Recorder receives per-sub-schema measurements.
type Recorder interface {
	ObserveSubSchema(outcome string, d time.Duration)
	ObserveFeedback(keys int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubSchema(string, time.Duration) {}
func (nopRecorder) ObserveFeedback(int)                    {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger.With(zap.String("component", "forge"))
		}
	}
}

// WithValidator sets the validator used by the validation stages.
func WithValidator(v schema.Validator) Option {
	return func(p *Pipeline) { p.validator = v }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithPromptFeedback switches the merge policy. Off by default.
func WithPromptFeedback(on bool) Option {
	return func(p *Pipeline) { p.feedback = on }
}

// WithMaxStringTokenLength sets the string token budget passed to the engine.
func WithMaxStringTokenLength(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxStringTokenLength = n
		}
	}
}

// WithModel sets the model name passed to the engine.
func WithModel(model string) Option {
	return func(p *Pipeline) { p.model = model }
}

// WithSubSchemaValidation checks every sub-schema against Draft-07 before
// generation.
func WithSubSchemaValidation(on bool) Option {
	return func(p *Pipeline) { p.validateSubSchemas = on }
}

// WithFragmentValidation checks every fragment against its sub-schema.
func WithFragmentValidation(on bool) Option {
	return func(p *Pipeline) { p.validateFragments = on }
}

// WithRequireAccelerator makes every pass fail before generation unless the
// engine reports an accelerated device.
func WithRequireAccelerator(on bool) Option {
	return func(p *Pipeline) { p.requireAccelerator = on }
}

// WithTracer overrides the tracer, mostly for tests.
func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

type preflight struct {
	once sync.Once
	err  error
}

// Pipeline drives an Engine over the sub-schemas of a schema and merges the
// fragments. It holds no per-pass state.
type Pipeline struct {
	engine    Engine
	validator schema.Validator
	logger    *zap.Logger
	recorder  Recorder
	tracer    trace.Tracer

	maxStringTokenLength int
	model                string
	feedback             bool
	validateSubSchemas   bool
	validateFragments    bool
	requireAccelerator   bool

	preflight *preflight
}

// NewPipeline creates a pipeline over engine.
func NewPipeline(engine Engine, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:               engine,
		logger:               zap.NewNop(),
		recorder:             nopRecorder{},
		tracer:               otel.Tracer(instrumentationName),
		maxStringTokenLength: DefaultMaxStringTokenLength,
		preflight:            &preflight{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ensureValidator()
	return p
}

// Derive returns a copy with opts applied. The accelerator check result is
// shared with p.
func (p *Pipeline) Derive(opts ...Option) *Pipeline {
	cp := *p
	for _, opt := range opts {
		opt(&cp)
	}
	cp.ensureValidator()
	return &cp
}

func (p *Pipeline) ensureValidator() {
	if p.validator == nil && (p.validateSubSchemas || p.validateFragments) {
		p.validator = schema.NewDraft07Validator()
	}
}

// PromptFeedback reports the merge policy.
func (p *Pipeline) PromptFeedback() bool { return p.feedback }

// Engine returns the underlying engine.
func (p *Pipeline) Engine() Engine { return p.engine }

// Preflight runs the accelerator check once per pipeline when required.
func (p *Pipeline) Preflight(ctx context.Context) error {
	if !p.requireAccelerator {
		return nil
	}
	p.preflight.once.Do(func() {
		p.preflight.err = CheckAccelerator(ctx, p.engine)
	})
	return p.preflight.err
}

// Run decomposes root and generates every sub-schema with prompt.
func (p *Pipeline) Run(ctx context.Context, prompt string, root *schema.Node) (*Result, error) {
	return p.RunAll(ctx, []Job{{Prompt: prompt, Schema: root}})
}

// RunAll runs several prompt/schema jobs through one accumulator, so a key
// produced by an earlier job merges (and feeds back) in later ones.
func (p *Pipeline) RunAll(ctx context.Context, jobs []Job) (*Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "forge.run", trace.WithAttributes(
		attribute.Int("forge.jobs", len(jobs)),
		attribute.Bool("forge.prompt_feedback", p.feedback),
	))
	defer span.End()

	if err := p.Preflight(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "accelerator unavailable")
		return nil, err
	}

	res := &Result{}
	var merger *Merger
	for i, job := range jobs {
		if merger == nil {
			merger = NewMerger(job.Prompt, p.feedback)
		} else {
			merger.Begin(job.Prompt)
		}

		subs := schema.Decompose(job.Schema)
		res.SubSchemas += len(subs)
		p.logger.Debug("schema decomposed",
			zap.Int("job", i),
			zap.Int("sub_schemas", len(subs)))

		for _, sub := range subs {
			if err := ctx.Err(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "cancelled")
				return nil, fmt.Errorf("forge: pass cancelled: %w", err)
			}
			if err := p.runSubSchema(ctx, i, sub, merger, res); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "generation failed")
				return nil, err
			}
		}
	}
	if merger == nil {
		merger = NewMerger("", p.feedback)
	}

	res.Record = merger.Record()
	res.Prompt = merger.Prompt()
	res.FedBack = merger.FedBack()
	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("forge.sub_schemas", res.SubSchemas),
		attribute.Int("forge.generated", res.Generated),
		attribute.Int("forge.skipped", len(res.Skipped)),
	)
	return res, nil
}

// Refine runs a pass, then a second pass whose prompt is the JSON text of
// the first record.
func (p *Pipeline) Refine(ctx context.Context, prompt string, root *schema.Node) (*Result, error) {
	first, err := p.Run(ctx, prompt, root)
	if err != nil {
		return nil, err
	}
	second, err := p.Run(ctx, first.Record.String(), root)
	if err != nil {
		return nil, fmt.Errorf("refine pass: %w", err)
	}
	second.First = first
	return second, nil
}

func (p *Pipeline) runSubSchema(ctx context.Context, job int, sub *schema.Node, merger *Merger, res *Result) error {
	start := time.Now()
	key := schema.SubSchemaKey(sub)
	ctx, span := p.tracer.Start(ctx, "forge.sub_schema", trace.WithAttributes(
		attribute.String("forge.key", key),
		attribute.Int("forge.job", job),
	))
	defer span.End()

	if p.validateSubSchemas {
		if err := p.validator.ValidateSchema(sub); err != nil {
			p.skip(res, SkipRecord{Job: job, Key: key, Stage: StageSubSchema, Reason: err.Error()}, start)
			span.AddEvent("skipped", trace.WithAttributes(attribute.String("forge.stage", string(StageSubSchema))))
			return nil
		}
	}

	fragment, err := p.generate(ctx, sub, merger.Prompt())
	if err != nil {
		p.recorder.ObserveSubSchema(OutcomeFailed, time.Since(start))
		p.logger.Error("generation failed", zap.String("key", key), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return types.NewError(types.ErrGeneration, fmt.Sprintf("generation failed for %q", key)).WithCause(err)
	}

	if p.validateFragments {
		if err := p.validator.ValidateInstance(sub, fragment.Plain()); err != nil {
			p.skip(res, SkipRecord{Job: job, Key: key, Stage: StageFragment, Reason: err.Error()}, start)
			span.AddEvent("skipped", trace.WithAttributes(attribute.String("forge.stage", string(StageFragment))))
			return nil
		}
	}

	fed := merger.Merge(fragment)
	if len(fed) > 0 {
		p.recorder.ObserveFeedback(len(fed))
		p.logger.Debug("prompt augmented", zap.Strings("keys", fed))
	}
	res.Generated++
	p.recorder.ObserveSubSchema(OutcomeGenerated, time.Since(start))
	return nil
}

func (p *Pipeline) generate(ctx context.Context, sub *schema.Node, prompt string) (*Record, error) {
	ctx, span := p.tracer.Start(ctx, "forge.generate")
	defer span.End()

	fragment, err := p.engine.Generate(ctx, &GenerateRequest{
		Schema:               sub,
		Prompt:               prompt,
		MaxStringTokenLength: p.maxStringTokenLength,
		Model:                p.model,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if fragment == nil {
		fragment = NewRecord()
	}
	span.SetAttributes(attribute.Int("forge.fragment_keys", fragment.Len()))
	return fragment, nil
}

func (p *Pipeline) skip(res *Result, rec SkipRecord, start time.Time) {
	res.Skipped = append(res.Skipped, rec)
	outcome := OutcomeSkippedSchema
	if rec.Stage == StageFragment {
		outcome = OutcomeSkippedFragment
	}
	p.recorder.ObserveSubSchema(outcome, time.Since(start))
	p.logger.Warn("sub-schema skipped",
		zap.Int("job", rec.Job),
		zap.String("key", rec.Key),
		zap.String("stage", string(rec.Stage)),
		zap.String("reason", rec.Reason))
}

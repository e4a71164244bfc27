// Package jsonforge provides a top-level convenience entry point for
// schema-guided JSON generation with minimal boilerplate.
//
// Usage:
//
//	import "github.com/v-sekai/jsonforge"
//
//	p, err := jsonforge.New(jsonforge.WithOpenAICompat("http://localhost:8000", "gpt-4o-mini"))
//	rec, err := p.Predict(ctx, "Generate a wand.", []byte(`{"type":"object", ...}`))
//
//	p, err := jsonforge.New(jsonforge.WithEngine(myEngine), jsonforge.WithPromptFeedback(true))
package jsonforge

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/engine"
	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/llm/providers/openaicompat"
	"github.com/v-sekai/jsonforge/schema"
)

// Option configures the pipeline created by New.
type Option func(*options)

type options struct {
	engine   forge.Engine
	baseURL  string
	model    string
	apiKey   string
	device   string
	logger   *zap.Logger
	pipeline []forge.Option
}

// WithEngine sets a pre-built engine.
func WithEngine(e forge.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithOpenAICompat generates through an OpenAI-compatible server.
// API key is read from OPENAI_API_KEY unless WithAPIKey is given.
func WithOpenAICompat(baseURL, model string) Option {
	return func(o *options) {
		o.baseURL = baseURL
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAPIKey overrides the API key for WithOpenAICompat.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithDevice sets the device the OpenAI-compatible backend reports.
func WithDevice(device string) Option {
	return func(o *options) { o.device = device }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithPromptFeedback appends repeated keys back into the prompt.
func WithPromptFeedback(on bool) Option {
	return func(o *options) { o.pipeline = append(o.pipeline, forge.WithPromptFeedback(on)) }
}

// WithPipelineOptions passes raw forge options through.
func WithPipelineOptions(opts ...forge.Option) Option {
	return func(o *options) { o.pipeline = append(o.pipeline, opts...) }
}

// Pipeline wraps forge.Pipeline with byte-level helpers.
type Pipeline struct {
	*forge.Pipeline
}

// New builds a pipeline. An engine must be given via WithEngine or
// WithOpenAICompat.
func New(opts ...Option) (*Pipeline, error) {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	e := o.engine
	if e == nil {
		if o.baseURL == "" {
			return nil, fmt.Errorf("jsonforge: no engine configured, use WithEngine or WithOpenAICompat")
		}
		provider := openaicompat.New(openaicompat.Config{
			ProviderName: "openai-compat",
			APIKey:       o.apiKey,
			BaseURL:      o.baseURL,
			DefaultModel: o.model,
		}, o.logger)
		e = engine.NewProviderEngine(provider, engine.ProviderConfig{
			Model:  o.model,
			Device: o.device,
		}, engine.WithEngineLogger(o.logger))
	}

	pipelineOpts := append([]forge.Option{forge.WithLogger(o.logger), forge.WithModel(o.model)}, o.pipeline...)
	return &Pipeline{Pipeline: forge.NewPipeline(e, pipelineOpts...)}, nil
}

// Predict parses schemaJSON and generates one record for prompt.
func (p *Pipeline) Predict(ctx context.Context, prompt string, schemaJSON []byte) (*forge.Record, error) {
	root, err := schema.Parse(schemaJSON)
	if err != nil {
		return nil, err
	}
	res, err := p.Run(ctx, prompt, root)
	if err != nil {
		return nil, err
	}
	return res.Record, nil
}

// Decompose returns the single-leaf sub-schemas of schemaJSON as JSON.
func Decompose(schemaJSON []byte) ([][]byte, error) {
	root, err := schema.Parse(schemaJSON)
	if err != nil {
		return nil, err
	}
	subs := schema.Decompose(root)
	out := make([][]byte, len(subs))
	for i, sub := range subs {
		if out[i], err = sub.MarshalJSON(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/api/handlers"
	"github.com/v-sekai/jsonforge/config"
	"github.com/v-sekai/jsonforge/engine"
	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/internal/cache"
	"github.com/v-sekai/jsonforge/internal/metrics"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/llm/providers/openaicompat"
)

// =============================================================================
// 🧱 组件装配
// =============================================================================

// app 持有 serve 与 predict 共用的组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector

	engine   forge.Engine
	pipeline *forge.Pipeline
	runs     store.RunStore
	checks   []handlers.HealthCheck

	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func(context.Context) error
}

type appOption func(*appOptions)

type appOptions struct {
	engine  forge.Engine
	noStore bool
}

// withEngine 跳过推理后端与缓存的构建，直接使用 e
func withEngine(e forge.Engine) appOption {
	return func(o *appOptions) { o.engine = e }
}

// withoutStore 不打开数据库
func withoutStore() appOption {
	return func(o *appOptions) { o.noStore = true }
}

// newApp 按配置构建引擎、缓存、存储与流水线。
// Redis 与数据库不可用时降级运行并记录警告。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (*app, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		collector: metrics.NewCollector("jsonforge", registry, logger),
	}

	a.engine = o.engine
	if a.engine == nil {
		a.engine = a.buildEngine()
	}

	if !o.noStore {
		if err := a.openStore(ctx); err != nil {
			logger.Warn("run store not available, runs will not be recorded", zap.Error(err))
		}
	}

	a.pipeline = forge.NewPipeline(a.engine,
		forge.WithLogger(logger),
		forge.WithRecorder(a.collector),
		forge.WithPromptFeedback(cfg.Forge.PromptFeedback),
		forge.WithMaxStringTokenLength(cfg.Forge.MaxStringTokenLength),
		forge.WithSubSchemaValidation(cfg.Forge.ValidateSubSchemas),
		forge.WithFragmentValidation(cfg.Forge.ValidateFragments),
		forge.WithRequireAccelerator(cfg.Forge.RequireAccelerator),
	)

	// 要求加速器时在启动阶段失败，而不是在第一次生成时
	if err := a.pipeline.Preflight(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	logger.Info("pipeline ready",
		zap.Bool("prompt_feedback", cfg.Forge.PromptFeedback),
		zap.Int("max_string_token_length", cfg.Forge.MaxStringTokenLength),
		zap.Bool("validate_sub_schemas", cfg.Forge.ValidateSubSchemas),
		zap.Bool("validate_fragments", cfg.Forge.ValidateFragments),
		zap.Bool("require_accelerator", cfg.Forge.RequireAccelerator),
		zap.Bool("run_store", a.runs != nil))
	return a, nil
}

// buildEngine OpenAI 兼容后端 → ProviderEngine → 可选的 Redis 缓存
func (a *app) buildEngine() forge.Engine {
	ec := a.cfg.Engine
	provider := openaicompat.New(openaicompat.Config{
		ProviderName:       ec.Provider,
		APIKey:             ec.APIKey,
		BaseURL:            ec.BaseURL,
		DefaultModel:       ec.Model,
		Timeout:            ec.Timeout,
		InsecureSkipVerify: ec.InsecureSkipVerify,
	}, a.logger)

	engineOpts := []engine.ProviderOption{
		engine.WithLLMRecorder(a.collector),
		engine.WithEngineLogger(a.logger),
	}
	// 流水线负责片段校验时，引擎不再拒绝片段，交由 skip-and-log 处理
	if a.cfg.Forge.ValidateFragments {
		engineOpts = append(engineOpts, engine.WithFragmentValidator(nil))
	}
	pe := engine.NewProviderEngine(provider, engine.ProviderConfig{
		Model:       ec.Model,
		Device:      ec.Device,
		Temperature: ec.Temperature,
	}, engineOpts...)

	a.checks = append(a.checks, handlers.NewCheck("engine", func(ctx context.Context) error {
		status, err := provider.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if !status.Healthy {
			return errors.New("inference backend unhealthy")
		}
		return nil
	}))

	if !a.cfg.Redis.Enabled {
		return pe
	}
	cm, err := cache.NewManager(cacheConfig(a.cfg.Redis), a.logger)
	if err != nil {
		a.logger.Warn("redis not available, generation cache disabled", zap.Error(err))
		return pe
	}
	a.checks = append(a.checks, handlers.NewCheck("redis", cm.Ping))
	a.closers = append(a.closers, namedCloser{"cache", func(context.Context) error { return cm.Close() }})
	return engine.NewCachedEngine(pe, cm, a.cfg.Engine.CacheTTL, ec.Model, a.collector, a.logger)
}

func cacheConfig(rc config.RedisConfig) cache.Config {
	cc := cache.DefaultConfig()
	cc.Addr = rc.Addr
	cc.Password = rc.Password
	cc.DB = rc.DB
	cc.TLSEnabled = rc.TLSEnabled
	if rc.KeyPrefix != "" {
		cc.KeyPrefix = rc.KeyPrefix
	}
	if rc.DefaultTTL > 0 {
		cc.DefaultTTL = rc.DefaultTTL
	}
	if rc.PoolSize > 0 {
		cc.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cc.MinIdleConns = rc.MinIdleConns
	}
	return cc
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.Database.Driver == "" {
		a.logger.Info("database driver not configured, runs will not be recorded")
		return nil
	}
	db, err := store.Open(a.cfg.Database, a.logger)
	if err != nil {
		return err
	}
	runs, err := store.NewRunStore(ctx, db, a.collector, a.logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	a.runs = runs
	a.checks = append(a.checks, handlers.NewCheck("database", db.Ping))
	a.closers = append(a.closers, namedCloser{"database", func(context.Context) error { return db.Close() }})
	return nil
}

// Close 按构建的逆序释放资源
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

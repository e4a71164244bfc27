package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/api/handlers"
	"github.com/v-sekai/jsonforge/internal/server"
	"github.com/v-sekai/jsonforge/internal/telemetry"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组合 API 端口、metrics 端口与心跳
type Server struct {
	app       *app
	logger    *zap.Logger
	telemetry *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
	heartbeat      *telemetry.Heartbeat

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(a *app, otelProviders *telemetry.Providers) *Server {
	return &Server{
		app:       a,
		logger:    a.logger,
		telemetry: otelProviders,
	}
}

// skipAuthPaths 不需要 API Key 的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// Handler 构建路由与中间件链
func (s *Server) Handler() http.Handler {
	cfg := s.app.cfg
	health := handlers.NewHealthHandler(handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, s.logger)
	for _, c := range s.app.checks {
		health.RegisterCheck(c)
	}

	forgeOpts := []handlers.ForgeOption{
		handlers.WithRunRecorder(s.app.collector),
		handlers.WithDefaultModel(cfg.Engine.Model),
	}
	if s.app.runs != nil {
		forgeOpts = append(forgeOpts, handlers.WithRunStore(s.app.runs))
	}
	forgeHandler := handlers.NewForgeHandler(s.app.pipeline, s.logger, forgeOpts...)

	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)
	if cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", s.metricsHandler())
	}

	// API
	mux.HandleFunc("POST /api/v1/predict", forgeHandler.HandlePredict)
	mux.HandleFunc("POST /api/v1/decompose", forgeHandler.HandleDecompose)
	if s.app.runs != nil {
		runsHandler := handlers.NewRunsHandler(s.app.runs, s.logger)
		mux.HandleFunc("GET /api/v1/runs", runsHandler.HandleList)
		mux.HandleFunc("GET /api/v1/runs/{id}", runsHandler.HandleGet)
	}

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.app.collector),
		RequestLogger(s.logger),
		CORS(cfg.Server.CORSAllowedOrigins),
		BodyLimit(cfg.Server.MaxBodyBytes),
		RateLimiter(rateLimiterCtx, float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)
}

// =============================================================================
// 🚀 启动与关闭
// =============================================================================

// Start 启动 API 与 metrics 服务以及心跳
func (s *Server) Start(ctx context.Context) error {
	cfg := s.app.cfg

	if cfg.Server.MetricsPort > 0 {
		s.metricsManager = server.NewManager("metrics", s.metricsHandler(), server.Config{
			Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.httpManager = server.NewManager("api", s.Handler(), server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, s.logger)

	// API 服务停止后依次执行
	s.httpManager.OnShutdown(func(ctx context.Context) error {
		if s.rateLimiterCancel != nil {
			s.rateLimiterCancel()
		}
		if s.heartbeat != nil {
			s.heartbeat.Stop()
		}
		return nil
	})
	if s.metricsManager != nil {
		s.httpManager.OnShutdown(s.metricsManager.Shutdown)
	}
	s.httpManager.OnShutdown(s.app.Close)
	s.httpManager.OnShutdown(s.telemetry.Shutdown)

	if err := s.httpManager.Start(); err != nil {
		if s.metricsManager != nil {
			_ = s.metricsManager.Shutdown(ctx)
		}
		return fmt.Errorf("start http server: %w", err)
	}

	s.heartbeat = telemetry.StartHeartbeat(ctx, cfg.Telemetry.HeartbeatInterval, s.logger)

	fields := []zap.Field{zap.String("http_addr", s.httpManager.ListenAddr())}
	if s.metricsManager != nil {
		fields = append(fields, zap.String("metrics_addr", s.metricsManager.ListenAddr()))
	}
	s.logger.Info("all servers started", fields...)
	return nil
}

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.app.registry, promhttp.HandlerOpts{
		Registry: s.app.registry,
	}))
	return mux
}

// Run 阻塞直到 ctx 结束或收到退出信号，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	return s.httpManager.Run(ctx)
}

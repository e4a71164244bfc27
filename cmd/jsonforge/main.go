// =============================================================================
// jsonforge 主入口
// =============================================================================
// 服务入口点：HTTP API、健康检查、Prometheus 指标，以及离线的 predict / decompose
//
// 使用方法:
//
//	jsonforge serve                                   # 启动服务
//	jsonforge serve --config config.yaml              # 指定配置文件
//	jsonforge predict --schema wand.json --prompt ..  # 单次生成
//	jsonforge decompose --example popstar             # 查看内置示例的子 schema
//	jsonforge version                                 # 显示版本信息
//	jsonforge health                                  # 健康检查
// =============================================================================

// @title jsonforge API
// @version 1.0.0
// @description Schema-guided JSON generation: a JSON Schema is split into
// @description single-leaf sub-schemas, each is generated under constrained
// @description decoding, and the fragments are merged into one document.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/v-sekai/jsonforge/config"
	"github.com/v-sekai/jsonforge/internal/telemetry"
	"github.com/v-sekai/jsonforge/llm/tokenizer"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run 分发子命令并返回退出码
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stderr)
	case "predict":
		return runPredict(args[1:], stdin, stdout, stderr)
	case "decompose":
		return runDecompose(args[1:], stdin, stdout, stderr)
	case "version":
		printVersion(stdout)
		return 0
	case "health":
		return runHealthCheck(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting jsonforge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	tokenizer.RegisterOpenAITokenizers()

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", zap.Error(err))
		_ = otelProviders.Shutdown(ctx)
		return 1
	}

	srv := NewServer(a, otelProviders)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		_ = a.Close(ctx)
		_ = otelProviders.Shutdown(ctx)
		return 1
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("jsonforge stopped")
	return 0
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check /ready instead of /health")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + path)
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "jsonforge %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `jsonforge - schema-guided JSON generation

Usage:
  jsonforge <command> [options]

Commands:
  serve      Start the HTTP API
  predict    Generate one JSON document from a schema
  decompose  Print the single-leaf sub-schemas of a schema
  version    Show version information
  health     Check server health
  help       Show this help message

Options for 'serve':
  --config <path>      Path to configuration file (YAML)

Options for 'predict':
  --config <path>      Path to configuration file (YAML)
  --schema <path|->    Schema file, "-" reads stdin
  --example <name>     Use a built-in example schema and prompt
  --prompt <text>      Prompt (defaults to the example prompt)
  --feedback           Append repeated keys to the prompt
  --refine             Run a second pass seeded with the first result
  --save               Record the run in the configured database

Options for 'decompose':
  --schema <path|->    Schema file, "-" reads stdin
  --example <name>     Use a built-in example schema
  --list               List built-in examples

Environment:
  JSONFORGE_CONFIG     Config file used when --config is not given
  JSONFORGE_<SECTION>_<KEY>  Overrides a single setting, e.g. JSONFORGE_ENGINE_MODEL

Examples:
  jsonforge serve --config /etc/jsonforge/config.yaml
  jsonforge predict --example popstar
  jsonforge decompose --schema schema.json
  jsonforge health --addr http://localhost:8080 --ready`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "jsonforge"))
}

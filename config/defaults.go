// =============================================================================
// 📦 jsonforge 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Forge:     DefaultForgeConfig(),
		Engine:    DefaultEngineConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultForgeConfig 返回默认流水线配置
func DefaultForgeConfig() ForgeConfig {
	return ForgeConfig{
		MaxStringTokenLength: 2048,
		PromptFeedback:       false,
		ValidateSubSchemas:   true,
		ValidateFragments:    false,
		RequireAccelerator:   false,
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Provider:    "openai-compat",
		BaseURL:     "http://localhost:8000",
		Model:       "gpt-4o-mini",
		Timeout:     2 * time.Minute,
		Device:      "cpu",
		Temperature: 0,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "jsonforge:",
		DefaultTTL:   24 * time.Hour,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置，默认使用本地 sqlite 文件
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Name:            "jsonforge.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:           false,
		OTLPEndpoint:      "localhost:4317",
		Insecure:          true,
		ServiceName:       "jsonforge",
		SampleRate:        0.1,
		HeartbeatInterval: 20 * time.Second,
	}
}

// =============================================================================
// 📦 SandFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Sandbox:   DefaultSandboxConfig(),
		Store:     DefaultStoreConfig(),
		Auth:      DefaultAuthConfig(),
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
		WriteTimeout:    6 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimit:       10,
		RateBurst:       20,
	}
}

// DefaultSandboxConfig 返回默认执行引擎配置
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		DefaultTimeout: 30 * time.Second,
		MaxTimeout:     5 * time.Minute,
		MaxConcurrent:  8,
		MaxOutputBytes: 64 * 1024,
		ReportRoles:    nil,
	}
}

// DefaultStoreConfig 返回默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Enabled:        false,
		URI:            "mongodb://localhost:27017",
		Database:       "sandflow",
		ConnectTimeout: 10 * time.Second,
	}
}

// DefaultAuthConfig 返回默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKeys:       nil,
		GuestIdentity: "",
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
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "sandflow",
		SampleRate:   0.1,
	}
}

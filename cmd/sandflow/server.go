package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/sandflow/config"
	"github.com/BaSui01/sandflow/internal/metrics"
	"github.com/BaSui01/sandflow/internal/server"
	"github.com/BaSui01/sandflow/internal/telemetry"
	"github.com/BaSui01/sandflow/sandbox"
	"github.com/BaSui01/sandflow/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 SandFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 执行引擎与存储后端
	engine  *sandbox.Engine
	backend store.Backend

	// Handlers 与指标收集器
	handlers         *Handlers
	metricsCollector *metrics.Collector

	// 遥测
	otelProviders *telemetry.Providers

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("sandflow", s.logger)

	// 2. 连接存储后端
	if err := s.initBackend(); err != nil {
		return fmt.Errorf("failed to init store backend: %w", err)
	}

	// 3. 构建执行引擎
	s.initEngine()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("store_enabled", s.backend != nil),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initBackend 连接 MongoDB 存储后端。
// 存储未启用时引擎以无存储模式运行，db/tools 门面不可用。
func (s *Server) initBackend() error {
	if !s.cfg.Store.Enabled {
		s.logger.Info("Store disabled, running without db/tools facades")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Store.ConnectTimeout)
	defer cancel()

	backend, err := store.NewMongoBackend(ctx, s.cfg.Store.URI, s.cfg.Store.Database, s.logger)
	if err != nil {
		return err
	}

	s.backend = backend
	s.logger.Info("Store backend connected", zap.String("database", s.cfg.Store.Database))
	return nil
}

// initEngine 构建执行引擎与 HTTP handlers
func (s *Server) initEngine() {
	engineCfg := sandbox.EngineConfig{
		MaxConcurrent:  s.cfg.Sandbox.MaxConcurrent,
		MaxOutputBytes: s.cfg.Sandbox.MaxOutputBytes,
		ReportRoles:    s.cfg.Sandbox.ReportRoles,
	}

	registry := sandbox.NewRegistry()
	s.engine = sandbox.NewEngine(engineCfg, s.backend, registry, nil, s.metricsCollector, s.logger)
	s.handlers = NewHandlers(s.engine, s.cfg.Sandbox.DefaultTimeout, s.logger)

	s.logger.Info("Execution engine initialized",
		zap.Int64("max_concurrent", engineCfg.MaxConcurrent),
		zap.Strings("capabilities", s.engine.Availability().Available()),
	)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.handlers.HandleHealth)
	mux.HandleFunc("/healthz", s.handlers.HandleHealthz)
	mux.HandleFunc("/ready", s.handlers.HandleReady)
	mux.HandleFunc("/readyz", s.handlers.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.handlers.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// API 路由
	// ========================================
	mux.HandleFunc("/api/v1/execute", s.handlers.HandleExecute)
	mux.HandleFunc("/api/v1/capabilities", s.handlers.HandleCapabilities)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimit, s.cfg.Server.RateBurst, s.logger),
		APIKeyAuth(s.cfg.Auth.APIKeys, s.cfg.Auth.GuestIdentity, skipAuthPaths, s.logger),
	)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	// 写入超时必须覆盖最长的脚本执行时间
	writeTimeout := s.cfg.Server.WriteTimeout
	if min := s.cfg.Sandbox.MaxTimeout + 30*time.Second; writeTimeout < min {
		s.logger.Warn("write_timeout below sandbox max_timeout, raising",
			zap.Duration("configured", writeTimeout),
			zap.Duration("effective", min),
		)
		writeTimeout = min
	}

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    writeTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 标记不再就绪并停止 rate limiter 清理 goroutine
	if s.handlers != nil {
		s.handlers.SetReady(false)
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器（排空进行中的执行）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 3. 断开存储后端
	if s.backend != nil {
		if err := s.backend.Close(ctx); err != nil {
			s.logger.Error("Store backend close error", zap.Error(err))
		}
	}

	// 4. 关闭遥测
	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}

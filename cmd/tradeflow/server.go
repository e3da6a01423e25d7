// Package main provides the TradeFlow server implementation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/BaSui01/tradeflow/agent/mcpbridge"
	"github.com/BaSui01/tradeflow/agent/persistence"
	"github.com/BaSui01/tradeflow/agent/records"
	agenttools "github.com/BaSui01/tradeflow/agent/tools"
	"github.com/BaSui01/tradeflow/analysis/hydrate"
	"github.com/BaSui01/tradeflow/analysis/progress"
	"github.com/BaSui01/tradeflow/analysis/runner"
	"github.com/BaSui01/tradeflow/analysis/tasks"
	"github.com/BaSui01/tradeflow/api/handlers"
	"github.com/BaSui01/tradeflow/config"
	"github.com/BaSui01/tradeflow/internal/metrics"
	"github.com/BaSui01/tradeflow/internal/server"
	"github.com/BaSui01/tradeflow/internal/telemetry"
	"github.com/BaSui01/tradeflow/llm"
	"github.com/BaSui01/tradeflow/llm/factory"
	llmproviders "github.com/BaSui01/tradeflow/llm/providers"
	llmtools "github.com/BaSui01/tradeflow/llm/tools"
	"github.com/BaSui01/tradeflow/market/orchestrator"
	"github.com/BaSui01/tradeflow/market/providers"
	"github.com/BaSui01/tradeflow/market/providers/akshare"
	"github.com/BaSui01/tradeflow/market/providers/tushare"
	"github.com/BaSui01/tradeflow/market/providers/yfinance"
	"github.com/BaSui01/tradeflow/market/quotestore"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🖥️ Server 结构（重构版）
// =============================================================================

// Server 是 TradeFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	otel       *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler       *handlers.HealthHandler
	analysisHandler     *handlers.AnalysisHandler
	agentConfigHandler  *handlers.AgentConfigHandler

	// 分析管线依赖（equity-analysis pipeline dependencies）
	recordStore *records.Store
	mcpBridge   *mcpbridge.Bridge
	taskManager *tasks.Manager

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("tradeflow", s.logger)

	// 2. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

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
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	// 健康检查 handler
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	if err := s.initAnalysisPipeline(); err != nil {
		return fmt.Errorf("failed to init analysis pipeline: %w", err)
	}

	s.logger.Info("Handlers initialized")
	return nil
}

// initAnalysisPipeline wires the equity-analysis stack: market adapters ->
// orchestrator -> declarative agent records -> tool registry (shared +
// market tools + MCP-bridged) -> graph controller -> task manager ->
// progress channel -> result hydrator -> HTTP handlers. Every stage reuses
// an already-built component from earlier in the chain.
func (s *Server) initAnalysisPipeline() error {
	ctx := context.Background()
	ac := s.cfg.Analysis

	// --- market data fanout ---
	adapters := []providers.Adapter{
		akshare.New(akshare.DefaultConfig(), s.logger),
		yfinance.New(yfinance.DefaultConfig(), s.logger),
	}
	tushareCfg := tushare.DefaultConfig()
	if token := os.Getenv("TUSHARE_TOKEN"); token != "" {
		tushareCfg.Token = token
		adapters = append(adapters, tushare.New(tushareCfg, s.logger))
	}
	market := ac.DefaultChinaDataSource
	if market == "" {
		market = "akshare"
	}
	orch := orchestrator.NewOrchestrator(ctx, market, adapters, nil, quotestore.NewMemoryStore(), s.logger)

	// News has a single upstream; when that adapter is down the tool is
	// filtered out of every agent's toolset rather than failing per call.
	availability := &agenttools.MarketAvailability{
		Health:   orch,
		Requires: map[string]string{"get_news": "akshare"},
	}

	// --- declarative agent records ---
	agentConfigDir := ac.AgentConfigDir
	if agentConfigDir == "" {
		agentConfigDir = "./configs/agents"
	}
	s.recordStore = records.NewStore(agentConfigDir, s.logger)

	// --- shared tool registry: market tools + whatever MCP bridges in ---
	registry := llmtools.NewDefaultRegistry(s.logger)
	if err := agenttools.RegisterMarketTools(registry, orch, s.logger); err != nil {
		return fmt.Errorf("register market tools: %w", err)
	}
	registryExec := llmtools.NewDefaultExecutor(registry, s.logger)

	// --- MCP tool bridge ---
	s.mcpBridge = mcpbridge.NewBridge(loadMCPConfig(ac.MCPServersFile, s.logger), s.logger)
	if err := s.mcpBridge.InitializeConnections(ctx); err != nil {
		s.logger.Warn("MCP bridge: some servers failed to connect", zap.Error(err))
	}
	if err := s.mcpBridge.RegisterInto(registry); err != nil {
		s.logger.Warn("MCP bridge: failed to register bridged tools", zap.Error(err))
	}
	s.mcpBridge.StartHealthPolling(ctx, time.Minute, s.logger)

	// --- LLM provider (black-box seam, spec non-goal on vendor choice) ---
	provider := buildLLMProvider(s.cfg.LLM, s.logger)

	// --- progress channel ---
	broadcaster := progress.NewBroadcaster(s.logger)
	wsHandler := progress.NewHandler(broadcaster, s.logger)

	// --- graph runner + task manager ---
	runtimeDir := ac.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = "./runtime"
	}
	taskStore, err := persistence.NewTaskStore(persistence.StoreConfig{
		Type:    persistence.StoreTypeFile,
		BaseDir: runtimeDir + "/tasks",
	})
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	analysisRunner := runner.New(provider, s.recordStore, registry, registryExec, availability, s.mcpBridge, broadcaster, nil, runner.Config{}, s.logger)

	maxRunningHours := ac.MaxRunningHours
	if maxRunningHours <= 0 {
		maxRunningHours = 4
	}
	s.taskManager = tasks.NewManager(taskStore, analysisRunner, s.logger, tasks.WithMaxRunningHours(maxRunningHours))

	// --- result hydrator ---
	// The runner doubles as the memory layer: it keeps each task's
	// AnalysisState resident until eviction. No Mongo doc store is dialed
	// here unless one is configured; the task-row and filesystem layers
	// still serve completed results.
	hydrator := hydrate.New(analysisRunner, nil, taskStore, hydrate.Config{RuntimeDir: runtimeDir}, s.logger)

	s.analysisHandler = handlers.NewAnalysisHandler(s.taskManager, hydrator, wsHandler, s.logger)
	s.agentConfigHandler = handlers.NewAgentConfigHandler(s.recordStore, s.logger)

	return nil
}

// loadMCPConfig reads the MCP servers manifest; a missing or unreadable
// file degrades to an empty bridge (no servers) rather than failing
// startup; external tool servers are optional.
func loadMCPConfig(path string, logger *zap.Logger) mcpbridge.Config {
	if path == "" {
		return mcpbridge.Config{}
	}
	cfg, err := mcpbridge.LoadConfig(path)
	if err != nil {
		logger.Warn("MCP servers manifest not loaded", zap.String("path", path), zap.Error(err))
		return mcpbridge.Config{}
	}
	return cfg
}

// buildLLMProvider constructs the single llm.Provider every graph node
// shares, resolved by name through the provider factory and wrapped with
// exponential-backoff retry per cfg.MaxRetries. The provider is a black box
// past this seam: agent/graph never imports a vendor package directly.
func buildLLMProvider(cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	name := cfg.DefaultProvider
	if name == "" {
		name = "openai"
	}
	provider, err := factory.NewProviderFromConfig(name, factory.ProviderConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}, logger)
	if err != nil {
		logger.Warn("unknown LLM provider, falling back to openai", zap.String("provider", name), zap.Error(err))
		provider, _ = factory.NewProviderFromConfig("openai", factory.ProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}, logger)
	}

	retryCfg := llmproviders.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retryCfg.MaxRetries = cfg.MaxRetries
	}
	return llmproviders.NewRetryableProvider(provider, retryCfg, logger)
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器（使用新的 handlers）
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点（使用新的 HealthHandler）
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 权益分析 API 路由
	// ========================================
	mux.HandleFunc("POST /analysis/single", s.analysisHandler.HandleSubmit)
	mux.HandleFunc("POST /analysis/batch", s.analysisHandler.HandleSubmitBatch)
	mux.HandleFunc("GET /analysis/tasks/{id}/status", s.analysisHandler.HandleStatus)
	mux.HandleFunc("GET /analysis/tasks/{id}/result", s.analysisHandler.HandleResult)
	mux.HandleFunc("POST /analysis/tasks/{id}/cancel", s.analysisHandler.HandleCancel)
	mux.HandleFunc("POST /analysis/tasks/{id}/mark-failed", s.analysisHandler.HandleMarkFailed)
	mux.HandleFunc("DELETE /analysis/tasks/{id}", s.analysisHandler.HandleDelete)
	mux.HandleFunc("GET /analysis/user/history", s.analysisHandler.HandleHistory)
	mux.HandleFunc("POST /analysis/admin/cleanup-zombie-tasks", s.analysisHandler.HandleCleanupZombieTasks)
	mux.HandleFunc("GET /analysis/ws/task/{id}", s.analysisHandler.HandleWebSocket)

	// ========================================
	// 声明式 Agent 配置 API
	// ========================================
	mux.HandleFunc("GET /agent-configs/{phase}", s.agentConfigHandler.HandleGet)
	mux.HandleFunc("PUT /agent-configs/{phase}", s.agentConfigHandler.HandlePut)

	// ========================================
	// 配置管理 API
	// ========================================
	if s.configAPIHandler != nil {
		s.configAPIHandler.RegisterRoutes(mux)
		s.logger.Info("Configuration API registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(context.Background(), float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		// WebSocket clients cannot set headers from the browser; enabling
		// AllowQueryAPIKey lets /analysis/ws/task/{id} authenticate via
		// the api_key query parameter.
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,                        // 1 MB
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
		WriteTimeout:    s.cfg.Server.WriteTimeout,
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

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 1.5 关闭 MCP 工具桥（终止子进程、断开 HTTP/SSE 会话）
	if s.mcpBridge != nil {
		s.mcpBridge.Shutdown()
	}

	// 2. 关闭 HTTP 服务器
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}

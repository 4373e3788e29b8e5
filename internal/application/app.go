package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ngoclaw/goosecore/internal/application/usecase"
	"github.com/ngoclaw/goosecore/internal/domain/core"
	"github.com/ngoclaw/goosecore/internal/domain/entity"
	"github.com/ngoclaw/goosecore/internal/domain/repository"
	"github.com/ngoclaw/goosecore/internal/domain/service"
	domaintool "github.com/ngoclaw/goosecore/internal/domain/tool"
	"github.com/ngoclaw/goosecore/internal/domain/valueobject"
	"github.com/ngoclaw/goosecore/internal/infrastructure/config"
	grpcinfra "github.com/ngoclaw/goosecore/internal/infrastructure/grpc"
	"github.com/ngoclaw/goosecore/internal/infrastructure/llm"
	_ "github.com/ngoclaw/goosecore/internal/infrastructure/llm/anthropic" // register anthropic provider factory
	_ "github.com/ngoclaw/goosecore/internal/infrastructure/llm/gemini"    // register gemini provider factory
	_ "github.com/ngoclaw/goosecore/internal/infrastructure/llm/openai"    // register openai provider factory
	"github.com/ngoclaw/goosecore/internal/infrastructure/monitoring"
	"github.com/ngoclaw/goosecore/internal/infrastructure/persistence"
	"github.com/ngoclaw/goosecore/internal/infrastructure/plugin"
	"github.com/ngoclaw/goosecore/internal/infrastructure/prompt"
	"github.com/ngoclaw/goosecore/internal/infrastructure/sandbox"
	"github.com/ngoclaw/goosecore/internal/infrastructure/sideload"
	toolpkg "github.com/ngoclaw/goosecore/internal/infrastructure/tool"
	"github.com/ngoclaw/goosecore/internal/interfaces/agentgrpc"
	httpServer "github.com/ngoclaw/goosecore/internal/interfaces/http"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App 应用程序
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	// 仓储层
	agentRepo   repository.AgentRepository
	messageRepo repository.MessageRepository

	// 领域服务
	agentSelector service.AgentSelector
	messageRouter service.MessageRouter

	// 应用服务
	processMessageUseCase *usecase.ProcessMessageUseCase

	// 基础设施
	toolRegistry  domaintool.Registry
	toolExecutor  *toolpkg.Executor
	llmRouter     *llm.Router
	mcpManager    *toolpkg.MCPManager
	agentLoop     *service.AgentLoop
	securityHook  *service.SecurityHook
	monitor       *monitoring.Monitor
	grpcAgentSrv  *agentgrpc.Server
	httpServer    *httpServer.Server
	metricsServer *http.Server
	modelFailover *grpcinfra.ModelFailover
	compactor     *usecase.Compactor
	sideloadMgr   *sideload.Manager
	pluginLoader  *plugin.Loader
	skillManager  *toolpkg.SkillManager

	// §4.L ReplyDriver collaborators, shared across every session's driver
	coreRegistry     *core.Registry
	checkpointStore  repository.CheckpointStore
	experienceStore  repository.ExperienceStore
	skillLibrary     repository.SkillLibrary
	guardrailsEngine *service.GuardrailsEngine
	budgetTracker    *service.BudgetTracker
	replyDriverCfg   service.ReplyDriverConfig

	// Prompt 引擎
	promptEngine *prompt.PromptEngine
}

// NewApp 创建应用程序（依赖注入容器）
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Bootstrap: ensure ~/.ngoclaw/ exists with default files on first run
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// 初始化各层组件
	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	// 初始化默认数据
	if err := app.seedData(); err != nil {
		return nil, fmt.Errorf("failed to seed data: %w", err)
	}

	return app, nil
}

// NewAppCLI creates a lightweight app for CLI mode.
// Only initializes: DB (silent), Tools, LLM Router, AgentLoop, PromptEngine.
// Skips: HTTP server, Telegram, gRPC, seed data.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("Bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{
		config: cfg,
		logger: logger,
	}

	// DB with silent logging (no SQL spam)
	if err := app.initRepositoriesSilent(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initInfrastructure(); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	// No initInterfaces (HTTP/TG/gRPC) — CLI doesn't need servers
	// No seedData — avoid noisy DB writes on every CLI launch
	return app, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	// 连接数据库
	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db

	// 初始化 GORM 仓储
	app.agentRepo = persistence.NewGormAgentRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)

	return nil
}

// initRepositoriesSilent initializes repos with silent DB logging (for CLI mode)
func (app *App) initRepositoriesSilent() error {
	db, err := persistence.NewDBConnectionSilent(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.agentRepo = persistence.NewGormAgentRepository(db)
	app.messageRepo = persistence.NewGormMessageRepository(db)
	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	// 代理选择器
	app.agentSelector = service.NewDefaultAgentSelector(app.agentRepo)

	// 消息路由器
	app.messageRouter = service.NewDefaultMessageRouter(app.agentSelector)

	return nil
}

// initInfrastructure 初始化基础设施
func (app *App) initInfrastructure() error {
	app.logger.Info("Initializing infrastructure")

	// Tool Registry + Executor
	app.toolRegistry = domaintool.NewInMemoryRegistry()
	homeDir, _ := os.UserHomeDir()
	systemSkillsDir := filepath.Join(homeDir, ".ngoclaw", "skills")

	// Workspace-level skills (project-specific overrides)
	workspaceDir := app.config.Agent.Workspace
	skillsDirs := []string{systemSkillsDir}
	if workspaceDir != "" {
		wsSkillsDir := filepath.Join(workspaceDir, ".ngoclaw", "skills")
		skillsDirs = append(skillsDirs, wsSkillsDir)
	}

	sbxCfg := sandbox.DefaultConfig()
	sbxCfg.PythonEnv = app.config.PythonEnv
	if app.config.Agent.Runtime.ToolTimeout > 0 {
		sbxCfg.Timeout = app.config.Agent.Runtime.ToolTimeout
	}
	sbx, sbxErr := sandbox.NewProcessSandbox(sbxCfg, app.logger)
	if sbxErr != nil {
		app.logger.Warn("Sandbox init failed, tools will run unsandboxed", zap.Error(sbxErr))
	}

	// Executor (只负责执行，不再负责注册)
	app.toolExecutor = toolpkg.NewExecutor(
		app.toolRegistry,
		&domaintool.Policy{Profile: "full"},
		sbx, nil, app.logger,
	)

	// LLM Router (modular provider factory with failover)
	// NOTE: must be initialized BEFORE RegisterAllTools because sub_agent depends on it.
	app.llmRouter = llm.NewRouter(app.logger)
	for _, p := range app.config.Agent.Providers {
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:     p.Name,
			Type:     p.Type,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Models:   p.Models,
			Priority: p.Priority,
		}, app.logger)
		if err != nil {
			app.logger.Error("Failed to create LLM provider",
				zap.String("name", p.Name),
				zap.String("type", p.Type),
				zap.Error(err),
			)
			continue
		}
		app.llmRouter.AddProvider(provider)
	}
	app.logger.Info("LLM Router initialized",
		zap.Int("providers", len(app.config.Agent.Providers)),
	)

	// MCP Manager (hot-pluggable, reads ~/.ngoclaw/mcp.json)
	homeDir, _ = os.UserHomeDir()
	mcpConfigPath := filepath.Join(homeDir, ".ngoclaw", "mcp.json")
	app.mcpManager = toolpkg.NewMCPManager(mcpConfigPath, app.toolRegistry, app.logger)

	// Sideload Manager (external stdio/TCP tool modules, e.g. non-Go skill
	// providers) — registers its modules' tools straight into the shared registry.
	app.sideloadMgr = sideload.NewManager(app.toolRegistry, app.logger)
	if app.config.Agent.Workspace != "" {
		app.sideloadMgr.SetProjectDir(app.config.Agent.Workspace)
	}
	if err := app.sideloadMgr.DiscoverAndStart(context.Background()); err != nil {
		app.logger.Warn("Sideload module discovery failed (non-fatal)", zap.Error(err))
	}

	// Plugin Loader (hot-pluggable dynamic tools under ~/.ngoclaw/plugins).
	// Each loaded plugin.json names an entry point factory (builtin
	// "script"/"http_request" or a custom-registered one); on load, its
	// Execute method is exposed to the agent as a tool named after the plugin.
	pluginDir := filepath.Join(homeDir, ".ngoclaw", "plugins")
	pluginLoader, err := plugin.NewLoader(&plugin.LoaderConfig{PluginDir: pluginDir}, app.logger)
	if err != nil {
		app.logger.Warn("Plugin loader init failed (non-fatal)", zap.Error(err))
	} else {
		plugin.RegisterBuiltinPlugins(pluginLoader)
		extReg := plugin.NewExtensionRegistry(app.logger)
		registrar := &pluginToolRegistrar{registry: app.toolRegistry}
		pluginLoader.SetCallbacks(
			func(name string) {
				inst, ok := pluginLoader.Get(name)
				if !ok {
					return
				}
				handler := func(args map[string]interface{}) (string, error) {
					out, err := inst.Execute(context.Background(), args)
					if err != nil {
						return "", err
					}
					data, _ := json.Marshal(out)
					return string(data), nil
				}
				if err := extReg.RegisterToolFromPlugin(name, name, "plugin "+name, nil, handler, registrar); err != nil {
					app.logger.Warn("Failed to register plugin tool", zap.String("plugin", name), zap.Error(err))
				}
			},
			func(name string) { extReg.UnregisterPluginTools(name, registrar) },
			nil,
		)
		if err := pluginLoader.LoadAll(context.Background()); err != nil {
			app.logger.Warn("Plugin discovery failed (non-fatal)", zap.Error(err))
		}
		app.pluginLoader = pluginLoader
	}

	// Skill discovery — scans systemSkillsDir for installed skills so their
	// scripts/ can be promoted to standalone tools below.
	app.skillManager = toolpkg.NewSkillManager(systemSkillsDir)

	// ── Unified Tool Registration (single entry point) ──
	subMaxSteps := app.config.Agent.Runtime.SubAgentMaxSteps
	if subMaxSteps <= 0 {
		subMaxSteps = 25
	}
	toolpkg.RegisterAllTools(toolpkg.ToolLayerDeps{
		Registry:   app.toolRegistry,
		Sandbox:    sbx,
		SkillExec:  nil,
		PythonEnv:  app.config.PythonEnv,
		SkillsDir:  systemSkillsDir,
		Workspace:  app.config.Agent.Workspace,
		MCPManager: app.mcpManager,
		SubAgent: &toolpkg.SubAgentDeps{
			LLMClient:    app.llmRouter,
			ToolExecutor: &toolBridge{registry: app.toolRegistry},
			DefaultModel: app.config.Agent.DefaultModel,
			MaxSteps:     subMaxSteps,
			Timeout:      app.config.Agent.Runtime.SubAgentTimeout,
		},
		SkillManager: app.skillManager,
		Logger:       app.logger,
	})

	// Prompt Engine (hot-pluggable system prompt assembly — System + Workspace layers)
	app.promptEngine = prompt.NewPromptEngine(app.config.Agent.Workspace, app.logger)
	if err := app.promptEngine.Discover(); err != nil {
		app.logger.Warn("Prompt engine discovery failed, will use empty system prompt",
			zap.Error(err),
		)
	}

	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	// ProcessMessageUseCase (legacy HTTP/REPL path — uses llmRouter directly)
	app.processMessageUseCase = usecase.NewProcessMessageUseCase(
		app.messageRepo,
		app.messageRouter,
		app.llmRouter,
		app.logger,
	)

	// Model failover (infrastructure/grpc.ModelFailover) wraps the Router-backed
	// AIServiceClient with per-model cooldown + fallback-chain retry, using the
	// configured provider models as the chain. Compactor uses it for the
	// legacy path's summarization calls.
	var fallbackModels []string
	for _, p := range app.config.Agent.Providers {
		fallbackModels = append(fallbackModels, p.Models...)
	}
	app.modelFailover = grpcinfra.NewModelFailover(fallbackModels, app.logger)
	routerAIClient := llm.NewRouterAIClient(app.llmRouter)
	app.compactor = usecase.NewCompactor(&failoverAIClient{
		failover: app.modelFailover,
		client:   routerAIClient,
	}, app.logger)
	app.processMessageUseCase.SetCompactor(app.compactor)

	// Agent Loop (ReAct Engine) — uses LLM Router + Tool Bridge
	loopTools := &toolBridge{registry: app.toolRegistry}

	loopCfg := service.DefaultAgentLoopConfig()
	loopCfg.Model = app.config.Agent.DefaultModel

	// Bridge per-model policy overrides from config.yaml
	if len(app.config.Agent.ModelPolicies) > 0 {
		loopCfg.ModelPolicies = make(map[string]*service.ModelPolicyOverride)
		for key, cfgPolicy := range app.config.Agent.ModelPolicies {
			override := &service.ModelPolicyOverride{
				RepairToolPairing:   cfgPolicy.RepairToolPairing,
				EnforceTurnOrdering: cfgPolicy.EnforceTurnOrdering,
				ReasoningFormat:     cfgPolicy.ReasoningFormat,
				ProgressInterval:    cfgPolicy.ProgressInterval,
				ProgressEscalation:  cfgPolicy.ProgressEscalation,
				PromptStyle:         cfgPolicy.PromptStyle,
				SystemRoleSupport:   cfgPolicy.SystemRoleSupport,
				ThinkingTagHint:     cfgPolicy.ThinkingTagHint,
			}
			loopCfg.ModelPolicies[key] = override
		}
	}
	if app.config.Agent.Guardrails.LoopDetectThreshold > 0 {
		loopCfg.DoomLoopThreshold = app.config.Agent.Guardrails.LoopDetectThreshold
	}
	if app.config.Agent.Guardrails.LoopNameThreshold > 0 {
		loopCfg.LoopNameThreshold = app.config.Agent.Guardrails.LoopNameThreshold
	}

	// Retry config from config.yaml
	if app.config.Agent.Runtime.MaxRetries > 0 {
		loopCfg.MaxRetries = app.config.Agent.Runtime.MaxRetries
	}
	if app.config.Agent.Runtime.RetryBaseWait > 0 {
		loopCfg.RetryBaseWait = app.config.Agent.Runtime.RetryBaseWait
	}

	// Compaction config from config.yaml
	if app.config.Agent.Compaction.MessageThreshold > 0 {
		loopCfg.CompactThreshold = app.config.Agent.Compaction.MessageThreshold
	}
	if app.config.Agent.Compaction.KeepRecent > 0 {
		loopCfg.CompactKeepLast = app.config.Agent.Compaction.KeepRecent
	}

	app.agentLoop = service.NewAgentLoop(
		app.llmRouter,
		loopTools,
		loopCfg,
		app.logger,
	)
	app.logger.Info("Agent Loop initialized",
		zap.String("model", loopCfg.Model),
	)

	// Create SecurityHook and attach to agent loop
	app.securityHook = service.NewSecurityHook(
		app.config.Agent.Security,
		nil, // approvalFunc: tool-call approval is surfaced via SSE/gRPC action_required frames
		app.logger,
	)

	// Prometheus metrics (infrastructure/monitoring), composed onto the loop
	// alongside SecurityHook via HookChain — every BeforeLLMCall/AfterToolCall
	// etc. fires both hooks in order.
	app.monitor = monitoring.NewMonitor(app.logger, "ngoclaw")
	app.monitor.RegisterRuntimeCollectors()
	metricsHook := monitoring.NewMetricsHook(app.monitor)
	app.agentLoop.SetHooks(service.NewHookChain(app.securityHook, metricsHook))

	// Middleware pipeline (data-transformation hooks around LLM calls)
	mwPipeline := service.NewMiddlewarePipeline(app.logger)
	mwPipeline.Use(
		service.NewDanglingToolCallMiddleware(app.logger),
		// NOTE: MemoryMiddleware intentionally removed.
		// It produced low-quality, unfiltered facts (201 entries in memory.json)
		// that polluted the system prompt and caused context poisoning.
		// Future: agent writes memory via file tools (OpenClaw pattern).
	)
	app.agentLoop.SetMiddleware(mwPipeline)
	app.logger.Info("Middleware pipeline configured",
		zap.Int("middlewares", mwPipeline.Len()),
	)

	// §4.L ReplyDriver collaborators. One Registry/GuardrailsEngine/BudgetTracker
	// is shared process-wide; each interface builds its own per-session
	// ReplyDriver instance(s) wrapping app.agentLoop around them.
	app.coreRegistry = core.NewRegistry(app.logger)
	app.coreRegistry.Register(entity.CoreFreeform, core.NewFreeformCore())

	subAgentRunner := service.NewLoopSubAgentRunner(app.agentLoop, nil)
	maxCycles := app.config.Agent.Runtime.SubAgentMaxSteps
	if maxCycles <= 0 {
		maxCycles = 25
	}
	app.coreRegistry.Register(entity.CoreStructured, core.NewStructuredCore(maxCycles))
	app.coreRegistry.Register(entity.CoreOrchestrator, core.NewOrchestratorCore(subAgentRunner, nil))
	app.coreRegistry.Register(entity.CoreSwarm, core.NewSwarmCore(subAgentRunner, 3, nil))
	app.coreRegistry.Register(entity.CoreAdversarial, core.NewAdversarialCore(
		service.NewLoopGenerator(app.agentLoop),
		service.NewLoopCritic(app.agentLoop),
		3,
	))
	app.coreRegistry.Register(entity.CoreWorkflow, core.NewWorkflowCore(service.BuildWorkflowSteps(app.agentLoop)))

	app.checkpointStore = persistence.NewGormCheckpointStore(app.db)
	app.experienceStore = persistence.NewGormExperienceStore(app.db)
	app.skillLibrary = persistence.NewGormSkillLibrary(app.db)

	app.guardrailsEngine = service.NewGuardrailsEngine(nil, app.logger)
	app.budgetTracker = service.NewBudgetTracker(nil, nil)

	app.replyDriverCfg = service.DefaultReplyDriverConfig()
	app.logger.Info("Reply driver collaborators initialized")

	return nil
}

// newReplyDriver builds a ReplyDriver for one session (one per HTTP/SSE
// conversation thread, one per gRPC session), sharing this App's
// process-wide core registry, guardrails engine, and budget tracker but
// each with its own SessionEventBus for frame broadcast.
func (app *App) newReplyDriver(sessionID string, bus service.EventPublisher) *service.ReplyDriver {
	return service.NewReplyDriver(
		sessionID,
		app.agentLoop,
		app.coreRegistry,
		app.checkpointStore,
		app.experienceStore,
		app.skillLibrary,
		app.guardrailsEngine,
		app.budgetTracker,
		bus,
		nil, // MemoryRecaller: none wired; ReplyDriver falls back to a no-op recaller
		app.replyDriverCfg,
		app.logger,
	)
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	// HTTP服务器 — the primary AG-UI surface. Every request drives a
	// per-session ReplyDriver (§4.L), not app.agentLoop directly, so core
	// auto-switching/checkpointing/experience/guardrails/budget all apply.
	loopToolsBridge := &toolBridge{registry: app.toolRegistry}
	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Gateway.Host,
			Port: app.config.Gateway.Port,
			Mode: app.config.Gateway.Mode,
		},
		app.processMessageUseCase,
		app.newReplyDriver,
		loopToolsBridge,
		app.promptEngine,
		app.logger,
	)

	// gRPC Agent Server (for VS Code Extension / SDK) — same ReplyDriver
	// factory as HTTP, one driver per gRPC session.
	grpcPort := app.config.Agent.GRPCPort
	if grpcPort == 0 {
		grpcPort = 50052
	}
	loopTools := &toolBridge{registry: app.toolRegistry}
	app.grpcAgentSrv = agentgrpc.NewServer(app.newReplyDriver, loopTools, grpcPort, app.logger)
	app.logger.Info("gRPC agent server created", zap.Int("port", grpcPort))

	// Prometheus /metrics — deliberately its own listener (MonitoringConfig's
	// metrics_port), not mixed into the gateway's public API surface.
	if app.config.Monitoring.Enabled {
		mux := http.NewServeMux()
		path := app.config.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, app.monitor.PrometheusHandler())
		app.metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", app.config.Monitoring.MetricsPort),
			Handler: mux,
		}
	}

	return nil
}

// seedData 初始化默认数据
func (app *App) seedData() error {
	app.logger.Info("Seeding default data")

	ctx := context.Background()

	// 创建默认代理
	defaultAgent, err := entity.NewAgent(
		"default",
		"默认助手",
		valueobject.DefaultModelConfig(),
	)
	if err != nil {
		return fmt.Errorf("failed to create default agent: %w", err)
	}

	// 保存默认代理
	if err := app.agentRepo.Save(ctx, defaultAgent); err != nil {
		return fmt.Errorf("failed to save default agent: %w", err)
	}

	app.logger.Info("Default agent created",
		zap.String("id", defaultAgent.ID()),
		zap.String("name", defaultAgent.Name()),
	)

	return nil
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	// 启动HTTP服务器
	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 启动 gRPC Agent Server
	if app.grpcAgentSrv != nil {
		if err := app.grpcAgentSrv.Start(); err != nil {
			app.logger.Warn("gRPC agent server failed to start", zap.Error(err))
		}
	}

	// 启动 Prometheus metrics 服务器
	if app.metricsServer != nil {
		go func() {
			if err := app.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Error("metrics server error", zap.Error(err))
			}
		}()
		app.logger.Info("Metrics server started", zap.String("addr", app.metricsServer.Addr))
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	// 停止 gRPC Agent Server
	if app.grpcAgentSrv != nil {
		app.grpcAgentSrv.Stop()
	}

	// 停止HTTP服务器
	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// 停止 metrics 服务器
	if app.metricsServer != nil {
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error("Failed to stop metrics server", zap.Error(err))
		}
	}

	// 停止 sideload 模块
	if app.sideloadMgr != nil {
		app.sideloadMgr.StopAll(ctx)
	}

	// 关闭插件加载器 (停止热加载 watcher)
	if app.pluginLoader != nil {
		if err := app.pluginLoader.Close(); err != nil {
			app.logger.Error("Failed to close plugin loader", zap.Error(err))
		}
	}

	// 关闭数据库连接
	if app.db != nil {
		sqlDB, err := app.db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("Failed to close database connection", zap.Error(err))
			}
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// ProcessMessageUseCase returns the message processing usecase (used by REPL)
func (app *App) ProcessMessageUseCase() *usecase.ProcessMessageUseCase {
	return app.processMessageUseCase
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}

// AgentLoop returns the agent loop instance (used by CLI)
func (app *App) AgentLoop() *service.AgentLoop {
	return app.agentLoop
}

// PromptEngine returns the prompt engine (used by CLI)
func (app *App) PromptEngine() *prompt.PromptEngine {
	return app.promptEngine
}

// ToolRegistry returns the tool registry (used by CLI)
func (app *App) ToolRegistry() domaintool.Registry {
	return app.toolRegistry
}

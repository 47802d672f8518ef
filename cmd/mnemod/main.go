package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/mnemod/mnemod/config"
	"github.com/mnemod/mnemod/pkg/api"
	"github.com/mnemod/mnemod/pkg/api/handlers"
	"github.com/mnemod/mnemod/pkg/llm"
	"github.com/mnemod/mnemod/pkg/logger"
	"github.com/mnemod/mnemod/pkg/memory"
	"github.com/mnemod/mnemod/pkg/metrics"
	"github.com/mnemod/mnemod/pkg/telemetry/tracing"
	"github.com/mnemod/mnemod/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	overrides := buildOverrides()

	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting mnemod",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	if cfg.Tracing.Enabled {
		log.Info("Initialized tracing", "endpoint", cfg.Tracing.Endpoint, "sampler", cfg.Tracing.Sampler)
	}

	// Durable record store
	badgerOpts := badger.DefaultOptions(cfg.Storage.Badger.Path)
	badgerOpts.SyncWrites = cfg.Storage.Badger.SyncWrites
	if cfg.Storage.Badger.ValueLogFileSize > 0 {
		badgerOpts.ValueLogFileSize = cfg.Storage.Badger.ValueLogFileSize
	}
	if cfg.Storage.Badger.NumVersionsToKeep > 0 {
		badgerOpts.NumVersionsToKeep = cfg.Storage.Badger.NumVersionsToKeep
	}
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		log.Error("Failed to open badger database", "path", cfg.Storage.Badger.Path, "error", err)
		os.Exit(1)
	}
	log.Info("Opened badger database", "path", cfg.Storage.Badger.Path)

	tiered := memory.NewTieredStorage(memory.NewL1Cache(cfg.Memory.L1CacheSize), memory.NewL2Badger(db))

	// Vector index
	var index memory.Index
	var snapshot *memory.InMemoryIndex
	switch cfg.Memory.Vector.Backend {
	case "chromem":
		chromemIdx, err := memory.NewChromemIndex(cfg.Memory.Vector.ChromemPath, cfg.Embedding.Dimension)
		if err != nil {
			log.Error("Failed to open chromem index", "error", err)
			os.Exit(1)
		}
		index = chromemIdx
		log.Info("Initialized chromem vector index", "path", cfg.Memory.Vector.ChromemPath)
	default:
		memIdx := memory.NewInMemoryIndex(cfg.Embedding.Dimension)
		if path := cfg.Memory.Vector.SnapshotPath; path != "" {
			if _, err := os.Stat(path); err == nil {
				if err := memIdx.Load(path); err != nil {
					log.Warn("Failed to load vector snapshot, starting empty", "path", path, "error", err)
				} else {
					log.Info("Loaded vector snapshot", "path", path, "entries", memIdx.Len())
				}
			}
			snapshot = memIdx
		}
		index = memIdx
		log.Info("Initialized in-memory vector index", "dimension", cfg.Embedding.Dimension)
	}

	// Providers
	chat, embedder, err := buildProviders(cfg)
	if err != nil {
		log.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	if cfg.LLM.RateLimit.Enabled {
		chat = llm.NewRateLimitedChat(chat, cfg.LLM.RateLimit.RequestsPerSecond, cfg.LLM.RateLimit.Burst)
		embedder = llm.NewRateLimitedEmbedder(embedder, cfg.LLM.RateLimit.RequestsPerSecond, cfg.LLM.RateLimit.Burst)
		log.Info("Enabled provider rate limiting",
			"requests_per_second", cfg.LLM.RateLimit.RequestsPerSecond,
			"burst", cfg.LLM.RateLimit.Burst,
		)
	}
	log.Info("Initialized providers", "chat", cfg.LLM.Provider, "model", cfg.LLM.Model, "embedding", cfg.Embedding.Model)

	// Memory pipeline
	store := memory.NewStore(tiered, index, embedder, memory.WithStoreLogger(log))
	buffer := memory.NewBuffer(cfg.Memory.WindowSize)
	summarizer := memory.NewSummarizer(chat, cfg.LLM.SummaryModel, memory.WithSummarizerLogger(log))

	orchOpts := []memory.OrchestratorOption{memory.WithOrchestratorLogger(log)}

	var redisClient *redis.Client
	if cfg.Memory.TurnLog.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		turnLog := memory.NewTurnLog(redisClient, cfg.Memory.TurnLog.TTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := turnLog.Ping(pingCtx); err != nil {
			log.Warn("Redis turn log unreachable at startup", "address", cfg.Storage.Redis.Address, "error", err)
		} else {
			log.Info("Connected to redis turn log", "address", cfg.Storage.Redis.Address)
		}
		pingCancel()
		orchOpts = append(orchOpts, memory.WithTurnLog(turnLog))
	}

	orchestrator := memory.NewOrchestrator(store, buffer, summarizer, chat, memory.OrchestratorConfig{
		RetrievalLimit:  cfg.Memory.RetrievalLimit,
		ContextBudget:   cfg.Memory.ContextBudget,
		ResponseReserve: cfg.Memory.ResponseReserve,
	}, orchOpts...)

	// Metrics
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// HTTP server
	checker := &serviceHealth{
		db:       db,
		redis:    redisClient,
		provider: cfg.LLM.Provider,
		index:    index,
	}

	apiHandlers := &api.Handlers{
		Chat:          handlers.NewChatHandler(orchestrator, cfg.LLM.Provider, log, metricsManager),
		Memory:        handlers.NewMemoryHandler(store, log),
		Conversations: handlers.NewConversationsHandler(orchestrator, log),
		Health:        handlers.NewHealthHandler(checker),
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("mnemod is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"provider", cfg.LLM.Provider,
		"vector_backend", cfg.Memory.Vector.Backend,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	if snapshot != nil {
		if err := snapshot.Save(cfg.Memory.Vector.SnapshotPath); err != nil {
			log.Error("Failed to save vector snapshot", "path", cfg.Memory.Vector.SnapshotPath, "error", err)
		} else {
			log.Info("Saved vector snapshot", "path", cfg.Memory.Vector.SnapshotPath, "entries", snapshot.Len())
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", "error", err)
		}
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing badger database", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("mnemod stopped gracefully")
}

// buildProviders wires the configured chat and embedding backends.
// Anthropic has no embedding API, so its configuration still needs
// OpenAI credentials for the embedder.
func buildProviders(cfg *config.Config) (llm.ChatProvider, llm.Embedder, error) {
	openaiProvider, err := llm.NewOpenAIProvider(
		cfg.LLM.OpenAI.APIKey,
		cfg.LLM.OpenAI.BaseURL,
		cfg.LLM.Model,
		cfg.Embedding.Model,
		cfg.LLM.MaxTokens,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("openai provider: %w", err)
	}

	switch cfg.LLM.Provider {
	case "anthropic":
		anthropicProvider, err := llm.NewAnthropicProvider(
			cfg.LLM.Anthropic.APIKey,
			cfg.LLM.Anthropic.BaseURL,
			cfg.LLM.Model,
			cfg.LLM.MaxTokens,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic provider: %w", err)
		}
		return anthropicProvider, openaiProvider, nil
	default:
		return openaiProvider, openaiProvider, nil
	}
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("mnemod - Memory-Augmented Chat Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("mnemod - Chat service with long-term memory\n\n")
	fmt.Printf("Usage: mnemod [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  mnemod                                    # Run with default config\n")
	fmt.Printf("  mnemod -config config.yaml                # Use specific config file\n")
	fmt.Printf("  mnemod -port 9090 -log-level debug        # Override specific options\n")
	fmt.Printf("  mnemod -version                           # Print version info\n")
}

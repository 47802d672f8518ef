package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "mnemod",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    120 * time.Second,
				IdleTimeout:     120 * time.Second,
				RequestTimeout:  90 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:          false,
				AllowedOrigins:   []string{"*"},
				AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID"},
				AllowCredentials: false,
				MaxAge:           300,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			Model:          "claude-sonnet-4-20250514",
			SummaryModel:   "",
			MaxTokens:      1024,
			RequestTimeout: 60 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 5,
				Burst:             10,
			},
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Memory: MemoryConfig{
			WindowSize:      10,
			RetrievalLimit:  5,
			ContextBudget:   4000,
			ResponseReserve: 1024,
			L1CacheSize:     1000,
			Vector: VectorConfig{
				Backend:      "memory",
				SnapshotPath: "./data/vectors.idx",
				ChromemPath:  "",
			},
			TurnLog: TurnLogConfig{
				Enabled: false,
				TTL:     24 * time.Hour,
			},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:              "./data/badger",
				SyncWrites:        true,
				ValueLogFileSize:  1073741824, // 1GB
				NumVersionsToKeep: 1,
			},
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			SampleRate: 0.1,
			Sampler:    "ratio",
			Timeout:    10 * time.Second,
		},
	}
}

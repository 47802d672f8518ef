// Package config provides configuration management for mnemod.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for mnemod.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// LLM is the chat completion provider configuration.
	LLM LLMConfig `mapstructure:"llm"`

	// Embedding is the embedding provider configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Memory is the memory subsystem configuration.
	Memory MemoryConfig `mapstructure:"memory"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RequestTimeout bounds handler execution per request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// LLMConfig holds chat completion provider settings.
type LLMConfig struct {
	// Provider is the active chat backend (anthropic, openai).
	Provider string `mapstructure:"provider" validate:"oneof=anthropic openai"`

	// Model is the default model identifier.
	Model string `mapstructure:"model" validate:"required"`

	// SummaryModel is the model used for conversation summarization.
	// Empty means Model.
	SummaryModel string `mapstructure:"summary_model"`

	// MaxTokens is the completion token ceiling per request.
	MaxTokens int `mapstructure:"max_tokens" validate:"min=1"`

	// RequestTimeout bounds a single provider call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RateLimit throttles outbound provider calls.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Anthropic holds Anthropic-specific settings.
	Anthropic AnthropicConfig `mapstructure:"anthropic"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// RateLimitConfig holds outbound request throttling settings.
type RateLimitConfig struct {
	// Enabled enables client-side rate limiting.
	Enabled bool `mapstructure:"enabled"`

	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the number of requests allowed to exceed the rate momentarily.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	// APIKey is the API key. Usually set via MNEMOD_LLM_ANTHROPIC_APIKEY.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the API endpoint (for proxies).
	BaseURL string `mapstructure:"base_url"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	// APIKey is the API key. Usually set via MNEMOD_LLM_OPENAI_APIKEY.
	APIKey string `mapstructure:"api_key"`

	// BaseURL overrides the API endpoint (for compatible servers).
	BaseURL string `mapstructure:"base_url"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding backend (openai).
	Provider string `mapstructure:"provider" validate:"oneof=openai"`

	// Model is the embedding model identifier.
	Model string `mapstructure:"model" validate:"required"`

	// Dimension is the expected embedding vector dimension.
	Dimension int `mapstructure:"dimension" validate:"min=1"`
}

// MemoryConfig holds memory subsystem settings.
type MemoryConfig struct {
	// WindowSize is the short-term buffer capacity in turns.
	WindowSize int `mapstructure:"window_size" validate:"min=1"`

	// RetrievalLimit is the default number of memories recalled per query.
	RetrievalLimit int `mapstructure:"retrieval_limit" validate:"min=1"`

	// ContextBudget is the prompt token budget per chat turn.
	ContextBudget int `mapstructure:"context_budget" validate:"min=1"`

	// ResponseReserve is the slice of the budget held back for the reply.
	ResponseReserve int `mapstructure:"response_reserve" validate:"min=0"`

	// L1CacheSize is the in-memory record cache capacity.
	L1CacheSize int `mapstructure:"l1_cache_size" validate:"min=1"`

	// Vector is the vector index configuration.
	Vector VectorConfig `mapstructure:"vector"`

	// TurnLog is the durable turn log configuration.
	TurnLog TurnLogConfig `mapstructure:"turn_log"`
}

// VectorConfig holds vector index settings.
type VectorConfig struct {
	// Backend selects the index implementation (memory, chromem).
	Backend string `mapstructure:"backend" validate:"oneof=memory chromem"`

	// SnapshotPath is where the in-memory backend persists its snapshot.
	SnapshotPath string `mapstructure:"snapshot_path"`

	// ChromemPath is the chromem-go persistence directory.
	// Empty means a purely in-process collection.
	ChromemPath string `mapstructure:"chromem_path"`
}

// TurnLogConfig holds durable turn log settings.
type TurnLogConfig struct {
	// Enabled enables the Redis-backed turn log.
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long cached conversation turns live.
	TTL time.Duration `mapstructure:"ttl"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Badger is the BadgerDB configuration (durable memory store).
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is the Redis configuration (turn log).
	Redis RedisConfig `mapstructure:"redis"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP/gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`

	// Sampler selects the sampling strategy: ratio, always_on or always_off.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=ratio always_on always_off"`

	// Timeout is the OTLP export timeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are extra gRPC metadata headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, LLM: %s/%s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.LLM.Provider, c.LLM.Model)
}

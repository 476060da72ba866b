// Package config provides application configuration with multi-source
// priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (runtime override, DATABASE_URL included)
//  2. Config file (~/.applydi/config.yaml or ./config.yaml)
//  3. Default values
//
// Sensitive values (the PostgreSQL password) are masked in MarshalJSON.
// Validation returns sentinel errors usable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModel indicates the default model ID is invalid.
	ErrInvalidModel = errors.New("invalid model")

	// ErrInvalidEmbedding indicates the embedding model or dimension is invalid.
	ErrInvalidEmbedding = errors.New("invalid embedding configuration")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidChunking indicates the chunk size or overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Model configuration. DefaultModel is provider-qualified
	// ("gemini:gemini-2.5-flash", "openai:gpt-4o").
	DefaultModel   string `mapstructure:"default_model" json:"default_model"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDim   int    `mapstructure:"embedding_dim" json:"embedding_dim"`

	// Retrieval configuration
	TopK               int `mapstructure:"top_k" json:"top_k"`
	ChunkTargetSize    int `mapstructure:"chunk_target_size" json:"chunk_target_size"`
	ChunkOverlap       int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	MaxImmediateChunks int `mapstructure:"max_immediate_chunks" json:"max_immediate_chunks"`

	// Answer cache configuration
	CacheTTL  time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size" json:"cache_size"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".applydi")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* values.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("default_model", "gemini:gemini-2.5-flash")
	viper.SetDefault("embedding_model", "text-embedding-3-small")
	viper.SetDefault("embedding_dim", 1536)

	viper.SetDefault("top_k", 8)
	viper.SetDefault("chunk_target_size", 2000)
	viper.SetDefault("chunk_overlap", 200)
	viper.SetDefault("max_immediate_chunks", 20)

	viper.SetDefault("cache_ttl", 5*time.Minute)
	viper.SetDefault("cache_size", 10)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "applydi")
	viper.SetDefault("postgres_password", "applydi_dev_password")
	viper.SetDefault("postgres_db_name", "applydi")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: GEMINI_API_KEY is read directly by Genkit and OPENAI_API_KEY by the
// OpenAI client; Validate checks their presence, Viper never sees them.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("default_model", "APPLYDI_DEFAULT_MODEL")
	mustBind("embedding_model", "APPLYDI_EMBEDDING_MODEL")
	mustBind("top_k", "APPLYDI_TOP_K")
	mustBind("log_level", "APPLYDI_LOG_LEVEL")
	mustBind("log_json", "APPLYDI_LOG_JSON")
	mustBind("postgres_password", "APPLYDI_POSTGRES_PASSWORD")
}

// maskedValue replaces sensitive fields in serialized config. Full-width
// blocks cannot collide with substrings of a real password.
const maskedValue = "████████"

// MarshalJSON masks sensitive fields.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = maskedValue
	}
	return json.Marshal(masked)
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	if os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.DefaultModel == "" {
		return fmt.Errorf("%w: default_model cannot be empty", ErrInvalidModel)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding_model cannot be empty", ErrInvalidEmbedding)
	}
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 4096 {
		return fmt.Errorf("%w: embedding_dim must be between 1 and 4096, got %d", ErrInvalidEmbedding, c.EmbeddingDim)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.ChunkTargetSize < 1 {
		return fmt.Errorf("%w: chunk_target_size must be positive, got %d", ErrInvalidChunking, c.ChunkTargetSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTargetSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_target_size), got %d", ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.MaxImmediateChunks < 1 {
		return fmt.Errorf("%w: max_immediate_chunks must be positive, got %d", ErrInvalidChunking, c.MaxImmediateChunks)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: password cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPassword == "applydi_dev_password" {
		slog.Warn("using the default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}
	return nil
}

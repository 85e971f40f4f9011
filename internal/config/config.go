package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Retrieval backends supported by RETRIEVAL_BACKEND.
const (
	RetrievalLocal  = "local"
	RetrievalQdrant = "qdrant"
)

// Database drivers supported by DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// minSigningKeyLen is the minimum INDEX_SIGNING_KEY length in bytes.
const minSigningKeyLen = 32

// Config holds all configuration for the application.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	APIPort   string
	LogLevel  slog.Level
	LogFormat string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	LLMBaseURL   string
	LLMModelName string
	LLMAPIKey    string

	AssistedLLMBaseURL   string
	AssistedLLMModelName string
	AssistedLLMAPIKey    string

	EmbeddingBaseURL    string
	EmbeddingModelName  string
	EmbeddingVectorSize int
	EmbeddingBatchSize  int

	SerperAPIKey string
	SerperURL    string

	RetrievalBackend string
	RetrievalK       int
	QdrantURL        string
	QdrantCollection string
	IndexSigningKey  []byte

	ChunkSize      int
	ChunkOverlap   int
	MinTextLength  int
	MaxUploadBytes int64

	GenerationTimeout time.Duration
	RedisURL          string
}

// SearchConfigured reports whether a web search provider key is present.
func (c *Config) SearchConfigured() bool {
	return c.SerperAPIKey != ""
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or a parent directory, it is loaded first.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	llmBaseURL := getEnv("LLM_BASE_URL", "http://localhost:8080")
	llmModelName := getEnv("LLM_MODEL", "gpt-4o-mini")
	llmAPIKey := getEnv("LLM_API_KEY", "")

	cfg := &Config{
		APIPort:   getEnv("API_PORT", "9000"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "./data/kortex.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		LLMBaseURL:   llmBaseURL,
		LLMModelName: llmModelName,
		LLMAPIKey:    llmAPIKey,

		AssistedLLMBaseURL:   getEnv("ASSISTED_LLM_BASE_URL", llmBaseURL),
		AssistedLLMModelName: getEnv("ASSISTED_LLM_MODEL", llmModelName),
		AssistedLLMAPIKey:    getEnv("ASSISTED_LLM_API_KEY", llmAPIKey),

		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", llmBaseURL),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),

		SerperAPIKey: getEnv("SERPER_API_KEY", ""),
		SerperURL:    getEnv("SERPER_URL", "https://google.serper.dev/search"),

		RetrievalBackend: strings.ToLower(getEnv("RETRIEVAL_BACKEND", RetrievalLocal)),
		QdrantURL:        getEnv("QDRANT_URL", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "kortex_chunks"),

		RedisURL: getEnv("REDIS_URL", ""),
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	// EMBEDDING_VECTOR_SIZE must match the embedding model output. Changing it
	// invalidates every cached index.
	vectorSizeStr := getEnv("EMBEDDING_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be greater than 0")
	}
	cfg.EmbeddingVectorSize = vectorSize

	signingKey := getEnv("INDEX_SIGNING_KEY", "")
	if signingKey == "" {
		return nil, fmt.Errorf("INDEX_SIGNING_KEY is required")
	}
	if len(signingKey) < minSigningKeyLen {
		return nil, fmt.Errorf("INDEX_SIGNING_KEY must be at least %d bytes", minSigningKeyLen)
	}
	cfg.IndexSigningKey = []byte(signingKey)

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"EMBEDDING_BATCH_SIZE", 32, &cfg.EmbeddingBatchSize},
		{"RETRIEVAL_K", 4, &cfg.RetrievalK},
		{"CHUNK_SIZE", 1000, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", 200, &cfg.ChunkOverlap},
		{"MIN_TEXT_LENGTH", 50, &cfg.MinTextLength},
	}
	for _, item := range ints {
		v, err := getEnvInt(item.key, item.def)
		if err != nil {
			return nil, err
		}
		*item.dest = v
	}

	if cfg.EmbeddingBatchSize <= 0 {
		return nil, fmt.Errorf("EMBEDDING_BATCH_SIZE must be greater than 0")
	}
	if cfg.RetrievalK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_K must be greater than 0")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("CHUNK_SIZE must be greater than 0")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 32<<20)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	timeout, err := time.ParseDuration(getEnv("GENERATION_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("GENERATION_TIMEOUT must be a valid duration: %w", err)
	}
	cfg.GenerationTimeout = timeout

	switch cfg.RetrievalBackend {
	case RetrievalLocal:
	case RetrievalQdrant:
		if cfg.QdrantURL == "" {
			return nil, fmt.Errorf("QDRANT_URL is required when RETRIEVAL_BACKEND=qdrant")
		}
	default:
		return nil, fmt.Errorf("RETRIEVAL_BACKEND must be %q or %q, got %q", RetrievalLocal, RetrievalQdrant, cfg.RetrievalBackend)
	}

	switch cfg.DBDriver {
	case DriverSQLite:
		dataDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, cfg.DBDriver)
	}

	return cfg, nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DBPath
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

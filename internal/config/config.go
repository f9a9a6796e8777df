// Package config loads configuration from environment variables and sets up
// logging.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM or embedding backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderVoyage Provider = "voyage"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Vision extraction. ExtractModel binds the remote ("web") extractor,
	// ExtractLocalModel the locally hosted ("local") one.
	ExtractProvider   Provider
	ExtractModel      string
	ExtractLocalModel string

	// Answer synthesis
	LLMProvider Provider
	LLMModel    string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Provider credentials and endpoints
	OpenAIAPIKey string
	VoyageAPIKey string
	OllamaHost   string

	// External file service for uploaded images
	FileServiceURL string

	// Ingestion
	WorkerPoolSize  int
	TaxonomySeed    string
	MaxDownloadSize int64

	// Retry policy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	// Retrieval defaults
	SearchThreshold float64
	SearchTopK      int

	// HTTP server
	ListenAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "snapknow"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "knowledge"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		ExtractProvider:   Provider(getEnv("SNAPKNOW_EXTRACT_PROVIDER", "openai")),
		ExtractModel:      getEnv("SNAPKNOW_EXTRACT_MODEL", "gpt-4o"),
		ExtractLocalModel: getEnv("SNAPKNOW_EXTRACT_LOCAL_MODEL", "llama3.2-vision"),

		LLMProvider: Provider(getEnv("SNAPKNOW_LLM_PROVIDER", "openai")),
		LLMModel:    getEnv("SNAPKNOW_LLM_MODEL", "gpt-4o-mini"),

		EmbedProvider:  Provider(getEnv("SNAPKNOW_EMBED_PROVIDER", "openai")),
		EmbedModel:     getEnv("SNAPKNOW_EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimension: getEnvInt("SNAPKNOW_EMBED_DIMENSION", 1536),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		VoyageAPIKey: getEnv("VOYAGE_API_KEY", ""),
		OllamaHost:   getEnv("OLLAMA_HOST", "http://localhost:11434"),

		FileServiceURL: getEnv("SNAPKNOW_FILE_SERVICE_URL", ""),

		WorkerPoolSize:  getEnvInt("SNAPKNOW_WORKER_POOL_SIZE", 2),
		TaxonomySeed:    getEnv("SNAPKNOW_TAXONOMY_SEED", ""),
		MaxDownloadSize: int64(getEnvInt("SNAPKNOW_MAX_DOWNLOAD_BYTES", 20<<20)),

		RetryMaxAttempts: getEnvInt("SNAPKNOW_RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   getEnvDuration("SNAPKNOW_RETRY_BASE_DELAY", time.Second),

		SearchThreshold: getEnvFloat("SNAPKNOW_SEARCH_THRESHOLD", 0.5),
		SearchTopK:      getEnvInt("SNAPKNOW_SEARCH_TOP_K", 10),

		ListenAddr: getEnv("SNAPKNOW_LISTEN_ADDR", ":8080"),

		LogFile:  getEnv("SNAPKNOW_LOG_FILE", "/tmp/snapknow.log"),
		LogLevel: parseLogLevel(getEnv("SNAPKNOW_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

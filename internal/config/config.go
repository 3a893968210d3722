// Package config loads vidrag settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names shared by the embedding and LLM settings.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderVoyage    = "voyage"
	ProviderBedrock   = "bedrock"
	ProviderHash      = "hash"
)

// Store backends.
const (
	StoreSurrealDB = "surrealdb"
	StoreMemory    = "memory"
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

	// StoreBackend selects where segments live: "surrealdb" or "memory".
	StoreBackend string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string
	VoyageAPIKey   string
	AWSRegion      string

	// Entity/topic extraction. Empty provider uses the heuristic extractor.
	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string

	// Content sources
	YouTubeAPIKey string

	// Ingestion
	SegmentDuration    float64
	SegmentConcurrency int
	MaxConcurrentRuns  int
	CallTimeout        time.Duration

	// Search
	DefaultMaxResults int
	SearchOversample  int

	// Tasks
	TaskRetention time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
// Values from .env and local.env in the working directory are applied first,
// without overriding variables already set in the process environment.
func Load() Config {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("local.env")

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "vidrag"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "segments"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		StoreBackend: getEnv("VIDRAG_STORE", StoreSurrealDB),

		EmbedProvider:  getEnv("VIDRAG_EMBED_PROVIDER", ProviderOllama),
		EmbedModel:     getEnv("VIDRAG_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("VIDRAG_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		VoyageAPIKey:   getEnv("VOYAGE_API_KEY", ""),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		LLMProvider:     getEnv("VIDRAG_LLM_PROVIDER", ""),
		LLMModel:        getEnv("VIDRAG_LLM_MODEL", "llama3.2"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		YouTubeAPIKey: getEnv("YOUTUBE_API_KEY", ""),

		SegmentDuration:    getEnvFloat("VIDRAG_SEGMENT_DURATION", 30),
		SegmentConcurrency: getEnvInt("VIDRAG_SEGMENT_CONCURRENCY", 4),
		MaxConcurrentRuns:  getEnvInt("VIDRAG_MAX_CONCURRENT_RUNS", 2),
		CallTimeout:        getEnvDuration("VIDRAG_CALL_TIMEOUT", 30*time.Second),

		DefaultMaxResults: getEnvInt("VIDRAG_MAX_RESULTS", 10),
		SearchOversample:  getEnvInt("VIDRAG_SEARCH_OVERSAMPLE", 4),

		TaskRetention: getEnvDuration("VIDRAG_TASK_RETENTION", 7*24*time.Hour),

		LogFile:  getEnv("VIDRAG_LOG_FILE", "/tmp/vidrag.log"),
		LogLevel: parseLogLevel(getEnv("VIDRAG_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("invalid number in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s", "168h") and a "d" day suffix ("7d").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if days, ok := strings.CutSuffix(val, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
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

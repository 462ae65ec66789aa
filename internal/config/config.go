package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all configuration for the application
type Config struct {
	Port     string
	Version  string
	LogLevel string

	// Relational store: checkpoints, ingest log, sessions, analytics.
	// Driver is detected from the URL; a bare path means local sqlite.
	DatabaseURL string

	// Mailbox provider (Gmail API) credentials. The interactive consent flow
	// happens elsewhere; we only receive a refresh token that the oauth2
	// token source keeps fresh.
	MailboxID          string // mailbox address, also the default sync target
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string

	// OpenAI / Azure OpenAI
	OpenAIKey                      string
	AzureOpenAIKey                 string
	AzureOpenAIEndpoint            string
	AzureOpenAIGPTDeployment       string
	AzureOpenAIEmbeddingDeployment string
	OpenAITimeout                  int // seconds
	ChatMaxTokens                  int
	ChatTemperature                float64

	// Vector repository
	VectorBackend    string // "sqlite" or "qdrant"
	VectorDBPath     string // sqlite backend: database file
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantUseTLS     bool
	VectorCollection string

	// Sync engine
	SyncPageSize    int
	SyncMaxMessages int
	SyncQuery       string // default Gmail search filter, e.g. "-in:spam -in:trash"

	// Chunk/embed pipeline
	ChunkSize      int // window size in runes
	ChunkOverlap   int // overlap in runes
	EmbedBatchSize int

	// Retrieval chain
	RetrievalK      int
	MemoryMaxTurns  int
	MemoryMaxTokens int
	QueryCacheTTL   int // minutes, query-embedding cache

	// Retry policy for provider calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Admin surface
	AdminUsername string
	AdminPassword string

	// Sync failure alerting
	SendGridAPIKey      string
	AlertEmail          string
	AlertFromEmail      string
	AlertFailedMessages int // alert when a run fails this many messages

	// Kubernetes job trigger
	K8sEnabled    bool
	K8sNamespace  string
	SyncJobImage  string
	SyncJobPrefix string
}

// Load initializes and returns application configuration
func Load() *Config {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:     getEnv("PORT", "8080"),
		Version:  getEnv("VERSION", "1.0.0"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", "mailchat.db"),

		MailboxID:          os.Getenv("GMAIL_MAILBOX"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRefreshToken: os.Getenv("GOOGLE_REFRESH_TOKEN"),

		OpenAIKey:                      os.Getenv("OPENAI_API_KEY"),
		AzureOpenAIKey:                 os.Getenv("AZURE_OPENAI_KEY"),
		AzureOpenAIEndpoint:            os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureOpenAIGPTDeployment:       getEnv("AZURE_OPENAI_GPT_DEPLOYMENT", "gpt-4o-mini"),
		AzureOpenAIEmbeddingDeployment: getEnv("AZURE_OPENAI_EMBEDDING_DEPLOYMENT", "text-embedding-3-small"),
		OpenAITimeout:                  getEnvInt("OPENAI_TIMEOUT", 60),
		ChatMaxTokens:                  getEnvInt("CHAT_MAX_TOKENS", 1000),
		ChatTemperature:                getEnvFloat("CHAT_TEMPERATURE", 0.2),

		VectorBackend:    getEnv("VECTOR_BACKEND", "sqlite"),
		VectorDBPath:     getEnv("VECTOR_DB_PATH", "mailchat-index.db"),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantUseTLS:     getEnvBool("QDRANT_USE_TLS", false),
		VectorCollection: getEnv("VECTOR_COLLECTION", "gmail_messages"),

		SyncPageSize:    getEnvInt("SYNC_PAGE_SIZE", 50),
		SyncMaxMessages: getEnvInt("SYNC_MAX_MESSAGES", 500),
		SyncQuery:       getEnv("SYNC_QUERY", "-in:spam -in:trash"),

		ChunkSize:      getEnvInt("CHUNK_SIZE", 1200),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 150),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 50),

		RetrievalK:      getEnvInt("RETRIEVAL_K", 4),
		MemoryMaxTurns:  getEnvInt("MEMORY_MAX_TURNS", 10),
		MemoryMaxTokens: getEnvInt("MEMORY_MAX_TOKENS", 3000),
		QueryCacheTTL:   getEnvInt("QUERY_CACHE_TTL_MINUTES", 10),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),
		RetryBaseDelay:   time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		RetryMaxDelay:    time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 30000)) * time.Millisecond,

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),

		SendGridAPIKey:      os.Getenv("SENDGRID_API_KEY"),
		AlertEmail:          os.Getenv("ALERT_EMAIL"),
		AlertFromEmail:      os.Getenv("ALERT_FROM_EMAIL"),
		AlertFailedMessages: getEnvInt("ALERT_FAILED_MESSAGES", 10),

		K8sEnabled:    getEnvBool("K8S_ENABLED", false),
		K8sNamespace:  getEnv("K8S_NAMESPACE", "mailchat"),
		SyncJobImage:  getEnv("SYNC_JOB_IMAGE", "mailchat:latest"),
		SyncJobPrefix: getEnv("SYNC_JOB_PREFIX", "mailbox-sync"),
	}

	return config
}

// UseAzureOpenAI reports whether Azure OpenAI is configured as the primary provider
func (c *Config) UseAzureOpenAI() bool {
	return c.AzureOpenAIKey != "" && c.AzureOpenAIEndpoint != ""
}

// HasOpenAIFallback reports whether the OpenAI platform key is available
func (c *Config) HasOpenAIFallback() bool {
	return c.OpenAIKey != ""
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as integer with a default fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as boolean with a default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float with a default fallback
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// SetupLogger configures zerolog with JSON output and single-line format
func (c *Config) SetupLogger() zerolog.Logger {
	// Configure zerolog to output JSON without newlines
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	// Create logger with JSON output to stdout
	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "mailchat").
		Str("version", c.Version).
		Logger()

	// Set log level based on configuration
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level)

	return logger
}

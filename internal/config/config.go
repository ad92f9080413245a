// Package config provides environment configuration for the webhook server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Reply modes.
const (
	ReplyCanned = "canned"
	ReplyBrain  = "brain"
	ReplyLLM    = "llm"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	PublicBaseURL      string
	CORSOrigins        []string

	// Storage
	StoreDriver string
	SQLitePath  string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// Reply settings
	ReplyMode         string
	ReplyTimeout      time.Duration
	AgentBrainURL     string
	AgentBrainAPIKey  string
	AgentBrainTimeout time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	LLMSystemPrompt string

	// Telegram
	TelegramAPIServer string

	// Rate limiting
	RateLimitRequests        int
	RateLimitWindow          time.Duration
	WebhookRateLimitRequests int

	// Errors
	RedactInternalErrors bool

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS", nil),

		// Storage
		StoreDriver: getEnv("STORE_DRIVER", StoreSQLite),
		SQLitePath:  getEnv("SQLITE_PATH", "data/webhooks.db"),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Replies
		ReplyMode:         getEnv("REPLY_MODE", ReplyCanned),
		ReplyTimeout:      getDurationEnv("REPLY_TIMEOUT", 20*time.Second),
		AgentBrainURL:     getEnv("AGENT_BRAIN_URL", ""),
		AgentBrainAPIKey:  getEnv("AGENT_BRAIN_API_KEY", ""),
		AgentBrainTimeout: getDurationEnv("AGENT_BRAIN_TIMEOUT", 15*time.Second),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMSystemPrompt: getEnv("LLM_SYSTEM_PROMPT", "You are a friendly sales assistant. Answer briefly and help the customer place an order."),

		// Telegram
		TelegramAPIServer: getEnv("TELEGRAM_API_SERVER", ""),

		// Rate limiting
		RateLimitRequests:        getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:          getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		WebhookRateLimitRequests: getIntEnv("WEBHOOK_RATE_LIMIT_REQUESTS", 120),

		RedactInternalErrors: getBoolEnv("REDACT_INTERNAL_ERRORS", false),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

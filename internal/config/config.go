// Package config centralizes runtime settings for the API and worker
// binary, loaded from environment variables with the same
// getEnv*/dotenv idiom the upstream service uses.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the ingress HTTP server and
// the worker pool it shares a process with.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	SharedSecret       string
	WebhookSkewSeconds int
	WebhookToken       string
	AdminToken         string

	WhatsAppAPIURL      string
	WhatsAppBearerToken string
	EnableJWTLogin      bool
	WhaticketJWTEmail   string
	WhaticketJWTPass    string
	GatewayTimeoutMS    int
	GatewayMaxRetries   int
	GatewayBackoffMS    int

	GeminiAPIKey           string
	GeminiModel            string
	LLMTimeoutSeconds      int
	LLMRetryAttempts       int
	LLMBreakerThreshold    int
	LLMBreakerResetSeconds int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ContextMaxMessages    int
	ContextTTLSeconds     int
	RequestTimeoutSeconds int

	WebhookRateLimitIP     int
	WebhookRateLimitNumber int
	RateLimitWindowSeconds int

	RQQueuePrefix        string
	RQDeadLetterQueue    string
	RQRetryMaxAttempts   int
	RQGroup              string
	RQConsumer           string
	DeadLetterTTLSeconds int

	TransferToHumanMessage string
	ResponseTemplatesPath  string
	DefaultMessageLimit    int

	WorkerConcurrency int
	WorkerEnabled     bool

	CORSAllowedOrigins []string
}

func Load() Config {
	return Config{
		HTTPAddr:    getEnvOr("HTTP_ADDR", getEnv("PORT", "8080")),
		MetricsAddr: getEnv("METRICS_ADDR", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		SharedSecret:       getEnv("SHARED_SECRET", ""),
		WebhookSkewSeconds: getEnvInt("WEBHOOK_SKEW_SECONDS", 300),
		WebhookToken:       getEnv("WEBHOOK_TOKEN_OPTIONAL", ""),
		AdminToken:         getEnv("ADMIN_TOKEN", ""),

		WhatsAppAPIURL:      getEnv("WHATSAPP_API_URL", ""),
		WhatsAppBearerToken: getEnv("WHATSAPP_BEARER_TOKEN", ""),
		EnableJWTLogin:      getEnvBool("ENABLE_JWT_LOGIN", false),
		WhaticketJWTEmail:   getEnv("WHATICKET_JWT_EMAIL", ""),
		WhaticketJWTPass:    getEnv("WHATICKET_JWT_PASSWORD", ""),
		GatewayTimeoutMS:    getEnvInt("REQUEST_TIMEOUT_SECONDS", 10) * 1000,
		GatewayMaxRetries:   getEnvInt("WHATICKET_RETRY_ATTEMPTS", 3),
		GatewayBackoffMS:    getEnvInt("WHATICKET_RETRY_BACKOFF_SECONDS", 1) * 1000,

		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTimeoutSeconds:      getEnvInt("LLM_TIMEOUT_SECONDS", 30),
		LLMRetryAttempts:       getEnvInt("LLM_RETRY_ATTEMPTS", 3),
		LLMBreakerThreshold:    getEnvInt("LLM_CIRCUIT_BREAKER_THRESHOLD", 5),
		LLMBreakerResetSeconds: getEnvInt("LLM_CIRCUIT_BREAKER_RESET_SECONDS", 300),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnvOr("REDIS_ADDR", redisHostFromURL(getEnv("REDIS_URL", ""))),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ContextMaxMessages:    getEnvInt("CONTEXT_MAX_MESSAGES", 5),
		ContextTTLSeconds:     getEnvInt("CONTEXT_TTL_SECONDS", 600),
		RequestTimeoutSeconds: getEnvInt("REQUEST_TIMEOUT_SECONDS", 10),

		WebhookRateLimitIP:     getEnvInt("WEBHOOK_RATE_LIMIT_IP", 60),
		WebhookRateLimitNumber: getEnvInt("WEBHOOK_RATE_LIMIT_NUMBER", 20),
		RateLimitWindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60),

		RQQueuePrefix:        getEnv("RQ_QUEUE", "queue"),
		RQDeadLetterQueue:    getEnv("RQ_DEAD_LETTER_QUEUE", "dlq"),
		RQRetryMaxAttempts:   getEnvInt("RQ_RETRY_MAX_ATTEMPTS", 5),
		RQGroup:              getEnv("RQ_GROUP", "wa_workers"),
		RQConsumer:           getEnv("RQ_CONSUMER", "worker-1"),
		DeadLetterTTLSeconds: getEnvInt("DEAD_LETTER_TTL_SECONDS", 604800),

		TransferToHumanMessage: getEnv("TRANSFER_TO_HUMAN_MESSAGE", "Vou te transferir para um de nossos atendentes."),
		ResponseTemplatesPath:  getEnv("RESPONSE_TEMPLATES_PATH", ""),
		DefaultMessageLimit:    getEnvInt("DEFAULT_MESSAGE_LIMIT", 20),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerEnabled:     getEnvBool("WORKER_ENABLED", true),

		CORSAllowedOrigins: getEnvCSV("CORS_ALLOWED_ORIGINS", []string{"https://web.whatsapp.com"}),
	}
}

// redisHostFromURL extracts the host:port portion of a redis:// URL,
// since the Redis client options used to build the shared client want
// an Addr rather than a full URL (the upstream service's REDIS_URL dial
// string).
func redisHostFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	trimmed := strings.TrimPrefix(rawURL, "redis://")
	trimmed = strings.TrimPrefix(trimmed, "rediss://")
	if idx := strings.Index(trimmed, "@"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvOr(primary string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(primary))
	if value != "" {
		return value
	}
	return fallback
}

func getEnvCSV(key string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return append([]string(nil), fallback...)
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return append([]string(nil), fallback...)
	}
	return result
}

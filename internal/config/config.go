package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Generation service (retrieval-augmented answers).
	GenerationBaseURL     string
	GenerationAPIKey      string
	GenerationContextSize int
	GenerationBackend     string // rag, bedrock, gemini
	BedrockModelID        string
	GeminiAPIKey          string
	GeminiModelID         string

	// Workflow timing.
	ExternalTimeout  time.Duration
	CallPollInterval time.Duration
	EmailDebounce    time.Duration
	RankingFreshness time.Duration

	// Twilio voice
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioWebhookBase string

	// TwilioValidateSignature rejects webhook posts without a valid
	// X-Twilio-Signature.
	TwilioValidateSignature bool

	// Email delivery
	EmailProvider     string // sendgrid, ses, stub
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string
	EmailSendRate     float64
	EmailSendBurst    int

	// Memory store
	MemoryStoreURL      string
	MemoryUserID        string
	UseMemoryQueue      bool
	MemoryQueueURL      string
	MemoryWorkerCount   int
	MemoryQueueCapacity int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	SanitizerPolicyPath string
	CORSAllowedOrigins  []string
	APIRateLimit        float64
	APIRateBurst        int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GenerationBaseURL:     getEnv("GENERATION_BASE_URL", "http://localhost:8000"),
		GenerationAPIKey:      getEnv("GENERATION_API_KEY", ""),
		GenerationContextSize: getEnvAsInt("GENERATION_CONTEXT_SIZE", 5),
		GenerationBackend:     strings.ToLower(getEnv("GENERATION_BACKEND", "rag")),
		BedrockModelID:        getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:         getEnv("GEMINI_MODEL_ID", ""),

		ExternalTimeout:  getEnvAsDuration("EXTERNAL_TIMEOUT", 30*time.Second),
		CallPollInterval: getEnvAsDuration("CALL_POLL_INTERVAL", 2*time.Second),
		EmailDebounce:    getEnvAsDuration("EMAIL_DEBOUNCE", 1500*time.Millisecond),
		RankingFreshness: getEnvAsDuration("RANKING_FRESHNESS", 5*time.Minute),

		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioWebhookBase: getEnv("TWILIO_WEBHOOK_URL", "http://localhost:8080"),

		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", true),

		EmailProvider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", ""),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", ""),
		EmailSendRate:     getEnvAsFloat("EMAIL_SEND_RATE", 10),
		EmailSendBurst:    getEnvAsInt("EMAIL_SEND_BURST", 5),

		MemoryStoreURL:      getEnv("MEMORY_STORE_URL", "http://localhost:8090"),
		MemoryUserID:        getEnv("MEMORY_USER_ID", "default-user"),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", true),
		MemoryQueueURL:      getEnv("MEMORY_QUEUE_URL", ""),
		MemoryWorkerCount:   getEnvAsInt("MEMORY_WORKER_COUNT", 2),
		MemoryQueueCapacity: getEnvAsInt("MEMORY_QUEUE_CAPACITY", 256),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		SanitizerPolicyPath: getEnv("SANITIZER_POLICY_PATH", ""),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		APIRateLimit:        getEnvAsFloat("API_RATE_LIMIT", 20),
		APIRateBurst:        getEnvAsInt("API_RATE_BURST", 40),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

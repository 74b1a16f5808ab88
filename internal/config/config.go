package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// TwilioAuthToken signs inbound voice webhooks; empty disables validation
	// (local development only).
	TwilioAuthToken string

	// TelnyxAPIKey is used for operator SMS notifications.
	TelnyxAPIKey             string
	TelnyxFromNumber         string
	TelnyxMessagingProfileID string

	AdminJWTSecret string

	// VoiceConfigCacheTTL bounds staleness of per-tenant voice configuration
	// during a live call.
	VoiceConfigCacheTTL time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// SendGrid Email Configuration (fallback when SES is not configured)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	SESFromEmail string
	SESFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:                     getEnv("PORT", "8080"),
		Env:                      getEnv("ENV", "development"),
		PublicBaseURL:            getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		RedisAddr:                getEnv("REDIS_ADDR", ""),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisTLS:                 getEnvAsBool("REDIS_TLS", false),
		TwilioAuthToken:          getEnv("TWILIO_AUTH_TOKEN", ""),
		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxFromNumber:         getEnv("TELNYX_FROM_NUMBER", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		AdminJWTSecret:           getEnv("ADMIN_JWT_SECRET", ""),
		VoiceConfigCacheTTL:      getEnvAsDuration("VOICE_CONFIG_CACHE_TTL", 60*time.Second),
		AWSRegion:                getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:           getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:      getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SendGridAPIKey:           getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:        getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:         getEnv("SENDGRID_FROM_NAME", "Engage"),
		SESFromEmail:             getEnv("SES_FROM_EMAIL", ""),
		SESFromName:              getEnv("SES_FROM_NAME", "Engage"),
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Publishing struct {
	WorkerSlots     int
	PublishTimeout  time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	RetryJitter     float64
	ConflictWindow  time.Duration
	ExpiringSoon    time.Duration
	RefreshLeadTime time.Duration
}

type Webhooks struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	DisableThreshold int
	RatePerSec       int
}

type Config struct {
	PostgresURI string
	RedisURI    string
	FrontendURL string
	R2          R2
	Publishing  Publishing
	Webhooks    Webhooks
	SecretKey   string
	CookieName  string
}

func LoadConfig() *Config {
	return &Config{
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		Publishing: Publishing{
			WorkerSlots:     getEnvInt("PUBLISH_WORKER_SLOTS", 10),
			PublishTimeout:  getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
			MaxAttempts:     getEnvInt("PUBLISH_MAX_ATTEMPTS", 4),
			RetryBaseDelay:  getEnvDuration("PUBLISH_RETRY_BASE", time.Second),
			RetryMaxDelay:   getEnvDuration("PUBLISH_RETRY_MAX", 60*time.Second),
			RetryJitter:     0.2,
			ConflictWindow:  getEnvDuration("CONFLICT_WINDOW", 60*time.Second),
			ExpiringSoon:    getEnvDuration("TOKEN_EXPIRING_SOON", 24*time.Hour),
			RefreshLeadTime: getEnvDuration("TOKEN_REFRESH_LEAD", 2*time.Hour),
		},
		Webhooks: Webhooks{
			MaxAttempts:      getEnvInt("WEBHOOK_MAX_ATTEMPTS", 3),
			BackoffBase:      getEnvDuration("WEBHOOK_BACKOFF_BASE", time.Second),
			DisableThreshold: getEnvInt("WEBHOOK_DISABLE_THRESHOLD", 3),
			RatePerSec:       getEnvInt("WEBHOOK_RATE_PER_SEC", 20),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

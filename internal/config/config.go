package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURI string
	ListenAddr  string

	// Push transport
	PushWebhookURL string
	PushTimeout    time.Duration

	// Optional Telegram ops delivery channel
	TelegramToken  string
	TelegramChatID int64

	// Optional AI copy polishing
	AIAPIKey  string
	AIBaseURL string
	AIModel   string

	// Intake
	ApproachCooldown time.Duration
	DedupWindow      time.Duration
	MinConfidence    float64

	// Bundling
	BundleWindow  time.Duration
	BundleRadiusM float64

	// Delivery
	MaxAttempts   int
	BackoffSteps  []time.Duration
	DispatchEvery time.Duration
	ClaimLease    time.Duration

	// Registry
	GeofenceCap   int
	RecheckEvery  time.Duration
	PostArrival   time.Duration
	SweepEvery    time.Duration
	RetentionDays int

	// Offline queue
	OfflineMaxRetries int
	OfflineEvery      time.Duration

	// Snooze/mute "tomorrow" target
	TomorrowHour int
	Timezone     string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional in production
	}

	cfg := &Config{
		DatabaseURI: os.Getenv("DATABASE_URI"),
		ListenAddr:  getEnvOrDefault("LISTEN_ADDR", ":8080"),

		PushWebhookURL: os.Getenv("PUSH_WEBHOOK_URL"),
		PushTimeout:    getEnvDuration("PUSH_TIMEOUT", 5*time.Second),

		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),

		AIAPIKey:  os.Getenv("AI_API_KEY"),
		AIBaseURL: getEnvOrDefault("AI_BASE_URL", "https://openrouter.ai/api/v1"),
		AIModel:   getEnvOrDefault("AI_MODEL", "openai/gpt-4o-mini"),

		ApproachCooldown: getEnvDuration("APPROACH_COOLDOWN", 15*time.Minute),
		DedupWindow:      getEnvDuration("DEDUP_WINDOW", 15*time.Minute),
		MinConfidence:    getEnvFloat("MIN_CONFIDENCE", 0.5),

		BundleWindow:  getEnvDuration("BUNDLE_WINDOW", 2*time.Minute),
		BundleRadiusM: getEnvFloat("BUNDLE_RADIUS_M", 200),

		MaxAttempts: getEnvInt("MAX_DELIVERY_ATTEMPTS", 3),
		BackoffSteps: []time.Duration{
			getEnvDuration("BACKOFF_1", 1*time.Minute),
			getEnvDuration("BACKOFF_2", 5*time.Minute),
			getEnvDuration("BACKOFF_3", 15*time.Minute),
		},
		DispatchEvery: getEnvDuration("DISPATCH_INTERVAL", 30*time.Second),
		ClaimLease:    getEnvDuration("CLAIM_LEASE", 2*time.Minute),

		GeofenceCap:   getEnvInt("GEOFENCE_CAP", 20),
		RecheckEvery:  getEnvDuration("REGISTRY_RECHECK_INTERVAL", time.Hour),
		PostArrival:   getEnvDuration("POST_ARRIVAL_DWELL", 5*time.Minute),
		SweepEvery:    getEnvDuration("SWEEP_INTERVAL", time.Minute),
		RetentionDays: getEnvInt("EVENT_RETENTION_DAYS", 90),

		OfflineMaxRetries: getEnvInt("OFFLINE_MAX_RETRIES", 5),
		OfflineEvery:      getEnvDuration("OFFLINE_INTERVAL", 30*time.Second),

		TomorrowHour: getEnvInt("SNOOZE_TOMORROW_HOUR", 9),
		Timezone:     getEnvOrDefault("TIMEZONE", "UTC"),
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string

	CollectionTablePrefix string
	PolicyBundlePath      string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	EventChannelPrefix string

	RateLimitRequests      int
	RateLimitWindowSeconds int
	RateLimitFailClosed    bool
	RateLimitMaxKeys       int

	SeedDefaultRequiresConfirmation bool
	SeedUserRateLimitPerHour        int
	SeedGlobalRateLimitPerHour      int

	StuckEntryAgeSeconds int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:              addr,
		PostgresDSN:           os.Getenv("POSTGRES_DSN"),
		LogLevel:              envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:           os.Getenv("ADMIN_API_KEY"),
		CollectionTablePrefix: envDefault("COLLECTION_TABLE_PREFIX", "data_"),
		PolicyBundlePath:      os.Getenv("POLICY_BUNDLE_PATH"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               envIntDefault("REDIS_DB", 0),
		EventChannelPrefix:    envDefault("EVENT_CHANNEL_PREFIX", "steward."),

		RateLimitRequests:      envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds: envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitFailClosed:    envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:       envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),

		SeedDefaultRequiresConfirmation: envBoolDefault("SEED_DEFAULT_REQUIRES_CONFIRMATION", true),
		SeedUserRateLimitPerHour:        envIntDefault("SEED_USER_RATE_LIMIT_PER_HOUR", 50),
		SeedGlobalRateLimitPerHour:      envIntDefault("SEED_GLOBAL_RATE_LIMIT_PER_HOUR", 500),

		StuckEntryAgeSeconds: envIntDefault("STUCK_ENTRY_AGE_SECONDS", 3600),
	}
}

func (c Config) RateLimitWindow() time.Duration {
	if c.RateLimitWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) StuckEntryAge() time.Duration {
	if c.StuckEntryAgeSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.StuckEntryAgeSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

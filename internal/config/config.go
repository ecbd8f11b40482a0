package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration, loaded from the environment.
type Config struct {
	AppEnv   string
	LogLevel string

	HTTPListenAddr   string
	AllowedOrigins   []string
	MetricsNamespace string

	DialogueBaseURL string
	DialogueTimeout time.Duration

	AbacateBaseURL string
	AbacateAPIKey  string
	AbacateTimeout time.Duration
	PixExpires     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// SessionRateLimit caps inbound messages per session per minute.
	// Zero disables rate limiting.
	SessionRateLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":3001"),
		AllowedOrigins:   splitList(os.Getenv("ALLOWED_ORIGINS")),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "chat_relay"),
		DialogueBaseURL:  getEnv("DIALOGUE_BASE_URL", "http://localhost:8001"),
		AbacateBaseURL:   getEnv("ABACATEPAY_BASE_URL", "https://api.abacatepay.com"),
		AbacateAPIKey:    os.Getenv("ABACATEPAY_API_KEY"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.DialogueTimeout, err = getDuration("DIALOGUE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AbacateTimeout, err = getDuration("ABACATEPAY_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PixExpires, err = getDuration("PIX_EXPIRES_SECONDS", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SessionRateLimit, err = getInt("SESSION_RATE_LIMIT", 0); err != nil {
		return nil, err
	}
	cfg.RedisTLS = strings.EqualFold(os.Getenv("REDIS_TLS"), "true")

	if cfg.AbacateAPIKey == "" {
		return nil, fmt.Errorf("ABACATEPAY_API_KEY is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

// getDuration accepts either a Go duration string or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(val); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

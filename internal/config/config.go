package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Live provider selections.
const (
	LiveProviderAuto   = "auto"
	LiveProviderGemini = "gemini"
	LiveProviderMock   = "mock"
)

// Config contains all runtime settings for the companion server.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	FirstAudioSLO            time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	RateLimitRPS   float64
	RateLimitBurst int

	LiveProvider     string
	GeminiAPIKey     string
	GeminiLiveModel  string
	GeminiChatModel  string
	GeminiImageModel string
	GeminiVoiceName  string

	LiveActionStatusTTL time.Duration
	LiveRecordDir       string

	DatabaseURL          string
	RedisURL             string
	ReminderPollInterval time.Duration

	CatalogPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "kindred"),
		AllowAnyOrigin:   false,
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("APP_LOG_FORMAT", "json"),
		RateLimitRPS:     1,
		RateLimitBurst:   5,
		LiveProvider:     strings.ToLower(envOrDefault("LIVE_PROVIDER", LiveProviderAuto)),
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		// Empty model names fall back to the client defaults.
		GeminiLiveModel:  stringsTrimSpace("GEMINI_LIVE_MODEL"),
		GeminiChatModel:  stringsTrimSpace("GEMINI_CHAT_MODEL"),
		GeminiImageModel: stringsTrimSpace("GEMINI_IMAGE_MODEL"),
		GeminiVoiceName:  stringsTrimSpace("GEMINI_VOICE_NAME"),
		LiveRecordDir:    stringsTrimSpace("LIVE_RECORD_DIR"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		CatalogPath:      stringsTrimSpace("COMPANION_CATALOG_PATH"),

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		FirstAudioSLO:            700 * time.Millisecond,
		LiveActionStatusTTL:      3 * time.Second,
		ReminderPollInterval:     5 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("APP_FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.LiveActionStatusTTL, err = durationFromEnv("LIVE_ACTION_STATUS_TTL", cfg.LiveActionStatusTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ReminderPollInterval, err = durationFromEnv("REMINDER_POLL_INTERVAL", cfg.ReminderPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitRPS, err = floatFromEnv("APP_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitBurst, err = intFromEnv("APP_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.LiveActionStatusTTL <= 0 {
		return Config{}, fmt.Errorf("LIVE_ACTION_STATUS_TTL must be positive")
	}
	if cfg.ReminderPollInterval < 100*time.Millisecond {
		return Config{}, fmt.Errorf("REMINDER_POLL_INTERVAL must be at least 100ms")
	}
	if cfg.RateLimitRPS <= 0 {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_RPS must be positive")
	}
	if cfg.RateLimitBurst <= 0 {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_BURST must be positive")
	}
	switch cfg.LiveProvider {
	case LiveProviderAuto, LiveProviderMock:
	case LiveProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return Config{}, fmt.Errorf("LIVE_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	default:
		return Config{}, fmt.Errorf("LIVE_PROVIDER must be one of auto, gemini, mock")
	}

	return cfg, nil
}

// UseGemini reports whether the Gemini provider should back live sessions
// and the companion brain.
func (c Config) UseGemini() bool {
	switch c.LiveProvider {
	case LiveProviderGemini:
		return true
	case LiveProviderMock:
		return false
	default:
		return c.GeminiAPIKey != ""
	}
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

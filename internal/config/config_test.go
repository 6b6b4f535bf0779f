package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.LiveProvider != LiveProviderAuto {
		t.Fatalf("LiveProvider = %q, want %q", cfg.LiveProvider, LiveProviderAuto)
	}
	if cfg.UseGemini() {
		t.Fatalf("UseGemini() = true without an api key")
	}
	if cfg.LiveActionStatusTTL != 3*time.Second {
		t.Fatalf("LiveActionStatusTTL = %v, want 3s", cfg.LiveActionStatusTTL)
	}
	if cfg.RateLimitBurst != 5 {
		t.Fatalf("RateLimitBurst = %d, want 5", cfg.RateLimitBurst)
	}
}

func TestLoadAutoPicksGeminiWithKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GEMINI_API_KEY", " key ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "key" {
		t.Fatalf("GeminiAPIKey = %q, want trimmed", cfg.GeminiAPIKey)
	}
	if !cfg.UseGemini() {
		t.Fatalf("UseGemini() = false, want true")
	}
}

func TestLoadMockOverridesKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("LIVE_PROVIDER", "MOCK")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.UseGemini() {
		t.Fatalf("UseGemini() = true, want false for mock provider")
	}
}

func TestLoadGeminiRequiresKey(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("LIVE_PROVIDER", "gemini")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want missing key error")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"LIVE_ACTION_STATUS_TTL":         "nope",
		"APP_RATE_LIMIT_RPS":             "0",
		"APP_RATE_LIMIT_BURST":           "x",
		"APP_ALLOW_ANY_ORIGIN":           "maybe",
		"LIVE_PROVIDER":                  "openai",
		"REMINDER_POLL_INTERVAL":         "1ms",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q error = nil", key, value)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("LIVE_ACTION_STATUS_TTL", "5s")
	t.Setenv("APP_RATE_LIMIT_RPS", "2.5")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("COMPANION_CATALOG_PATH", "catalog.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.LiveActionStatusTTL != 5*time.Second || cfg.RateLimitRPS != 2.5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" || cfg.CatalogPath != "catalog.yaml" {
		t.Fatalf("storage overrides not applied: %+v", cfg)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_FIRST_AUDIO_SLO",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_RATE_LIMIT_RPS",
		"APP_RATE_LIMIT_BURST",
		"LIVE_PROVIDER",
		"GEMINI_API_KEY",
		"GEMINI_LIVE_MODEL",
		"GEMINI_CHAT_MODEL",
		"GEMINI_IMAGE_MODEL",
		"GEMINI_VOICE_NAME",
		"LIVE_ACTION_STATUS_TTL",
		"LIVE_RECORD_DIR",
		"DATABASE_URL",
		"REDIS_URL",
		"REMINDER_POLL_INTERVAL",
		"COMPANION_CATALOG_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

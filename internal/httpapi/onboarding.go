package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/ent0n29/kindred/internal/config"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	LiveProvider      string            `json:"live_provider"`
	ConfiguredLive    string            `json:"configured_live_provider"`
	PersistenceMode   string            `json:"persistence_mode"`
	ReminderStoreMode string            `json:"reminder_store_mode"`
	Personalities     int               `json:"personalities"`
	Checks            []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	configured := strings.ToLower(strings.TrimSpace(s.cfg.LiveProvider))
	if configured == "" {
		configured = config.LiveProviderAuto
	}

	checks := make([]onboardingCheck, 0, 8)
	checks = append(checks, s.liveChecks(configured)...)
	checks = append(checks, s.storageChecks()...)
	checks = append(checks, s.catalogCheck())

	if dir := strings.TrimSpace(s.cfg.LiveRecordDir); dir != "" {
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			checks = append(checks, onboardingCheck{
				ID:     "record_dir",
				Status: "warn",
				Label:  "Session recordings",
				Detail: fmt.Sprintf("%s is not a directory", dir),
				Fix:    "Create the directory or unset LIVE_RECORD_DIR.",
			})
		} else {
			checks = append(checks, onboardingCheck{
				ID:     "record_dir",
				Status: "ok",
				Label:  "Session recordings",
				Detail: dir,
			})
		}
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		LiveProvider:      s.provider,
		ConfiguredLive:    configured,
		PersistenceMode:   storeMode(s.cfg.DatabaseURL, "postgres"),
		ReminderStoreMode: storeMode(s.cfg.RedisURL, "redis"),
		Personalities:     len(s.companion.Catalog().Personalities),
		Checks:            checks,
	})
}

func (s *Server) liveChecks(configured string) []onboardingCheck {
	out := make([]onboardingCheck, 0, 2)
	hasKey := strings.TrimSpace(s.cfg.GeminiAPIKey) != ""

	switch configured {
	case config.LiveProviderGemini, config.LiveProviderAuto:
		if hasKey {
			out = append(out, onboardingCheck{
				ID:     "gemini_key",
				Status: "ok",
				Label:  "Gemini API key",
				Detail: "present",
			})
			break
		}
		status := "warn"
		if configured == config.LiveProviderGemini {
			status = "error"
		}
		out = append(out, onboardingCheck{
			ID:     "gemini_key",
			Status: status,
			Label:  "Gemini API key",
			Detail: "GEMINI_API_KEY is not set",
			Fix:    "Set GEMINI_API_KEY to talk to the realtime model.",
		})
	case config.LiveProviderMock:
	default:
		out = append(out, onboardingCheck{
			ID:     "live_provider_unknown",
			Status: "warn",
			Label:  "Live provider",
			Detail: "unknown provider; expected auto|gemini|mock",
		})
	}

	if s.provider == config.LiveProviderMock {
		out = append(out, onboardingCheck{
			ID:     "mock_live",
			Status: "warn",
			Label:  "Live provider is mock",
			Detail: "Voice sessions play scripted replies.",
			Fix:    "Set GEMINI_API_KEY and LIVE_PROVIDER=auto.",
		})
	} else {
		out = append(out, onboardingCheck{
			ID:     "live_provider",
			Status: "ok",
			Label:  "Live provider",
			Detail: s.provider,
		})
	}
	return out
}

func (s *Server) storageChecks() []onboardingCheck {
	out := make([]onboardingCheck, 0, 2)
	if strings.TrimSpace(s.cfg.DatabaseURL) == "" {
		out = append(out, onboardingCheck{
			ID:     "memory_store",
			Status: "warn",
			Label:  "Memory persistence",
			Detail: "in-memory only",
			Fix:    "Set DATABASE_URL to keep history, memories and diary across restarts.",
		})
	} else {
		out = append(out, onboardingCheck{
			ID:     "memory_store",
			Status: "ok",
			Label:  "Memory persistence",
			Detail: "postgres",
		})
	}
	if strings.TrimSpace(s.cfg.RedisURL) == "" {
		out = append(out, onboardingCheck{
			ID:     "reminder_store",
			Status: "warn",
			Label:  "Reminders",
			Detail: "in-memory only",
			Fix:    "Set REDIS_URL to keep pending reminders across restarts.",
		})
	} else {
		out = append(out, onboardingCheck{
			ID:     "reminder_store",
			Status: "ok",
			Label:  "Reminders",
			Detail: "redis",
		})
	}
	return out
}

func (s *Server) catalogCheck() onboardingCheck {
	if path := strings.TrimSpace(s.cfg.CatalogPath); path != "" {
		return onboardingCheck{
			ID:     "catalog",
			Status: "ok",
			Label:  "Personality catalog",
			Detail: path,
		}
	}
	return onboardingCheck{
		ID:     "catalog",
		Status: "ok",
		Label:  "Personality catalog",
		Detail: "built-in",
	}
}

func storeMode(url, backend string) string {
	if strings.TrimSpace(url) == "" {
		return "in-memory"
	}
	return backend
}

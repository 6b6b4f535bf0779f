package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/config"
	"github.com/ent0n29/kindred/internal/httpapi"
	"github.com/ent0n29/kindred/internal/memory"
	"github.com/ent0n29/kindred/internal/observability"
	"github.com/ent0n29/kindred/internal/reminders"
	"github.com/ent0n29/kindred/internal/session"
	"github.com/ent0n29/kindred/internal/voice"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Bridge    *voice.Bridge
	Hub       *voice.Hub
	Companion *companion.Service
	Metrics   *observability.Metrics
	Reminders *reminders.Scheduler
	Provider  ProviderInfo

	// Cleanup should be called on shutdown to release external resources (DB, redis).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	memoryStore, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}
	reminderStore, err := reminders.NewStore(ctx, cfg.RedisURL, logger)
	if err != nil {
		_ = memoryStore.Close()
		return nil, fmt.Errorf("reminder store init failed: %w", err)
	}
	cleanup := func() error {
		return errors.Join(reminderStore.Close(), memoryStore.Close())
	}

	catalog := companion.DefaultCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = companion.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("catalog load failed: %w", err)
		}
	}

	provider, err := resolveLiveProvider(ctx, cfg, logger)
	if err != nil {
		_ = cleanup()
		return nil, err
	}
	logger.Info("live provider resolved",
		zap.String("provider", provider.Info.Name),
		zap.String("detail", provider.Info.Detail),
	)

	companionSvc := companion.NewService(memoryStore, provider.brain, catalog, reminderStore, logger)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		logger.Info("voice session expired", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	})

	hub := voice.NewHub(metrics, logger)
	// Ending, superseding or expiring a session closes its live connection.
	sessions.SetEndHook(func(s *session.Session) { hub.CloseSession(s.ID) })
	bridge := voice.NewBridge(voice.BridgeConfig{
		Connector:       provider.connector,
		Companion:       companionSvc,
		Sessions:        sessions,
		Metrics:         metrics,
		Hub:             hub,
		Logger:          logger,
		ActionStatusTTL: cfg.LiveActionStatusTTL,
		RecordDir:       cfg.LiveRecordDir,
		Provider:        provider.Info.Name,
		FirstAudioSLO:   cfg.FirstAudioSLO,
	})
	scheduler := reminders.NewScheduler(reminderStore, hub, logger)

	ready := map[string]httpapi.ReadyCheck{
		"memory": memoryStore.Ping,
	}
	if p, ok := reminderStore.(interface{ Ping(context.Context) error }); ok {
		ready["reminders"] = p.Ping
	}

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:  sessions,
		Bridge:    bridge,
		Companion: companionSvc,
		Metrics:   metrics,
		Logger:    logger,
		Ready:     ready,
		Provider:  provider.Info.Name,
	})

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Bridge:    bridge,
		Hub:       hub,
		Companion: companionSvc,
		Metrics:   metrics,
		Reminders: scheduler,
		Provider:  provider.Info,
		Cleanup:   cleanup,
	}, nil
}

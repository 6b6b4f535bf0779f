package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ent0n29/kindred/internal/companion"
	"github.com/ent0n29/kindred/internal/config"
	"github.com/ent0n29/kindred/internal/gemini"
	"github.com/ent0n29/kindred/internal/live"
)

// ProviderInfo describes the backend behind live sessions and chat.
type ProviderInfo struct {
	Name   string
	Detail string
	Voice  string
}

type liveSetup struct {
	connector live.Connector
	brain     companion.Brain
	Info      ProviderInfo
}

func resolveLiveProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (liveSetup, error) {
	mock := func(detail string) liveSetup {
		return liveSetup{
			connector: live.NewMockConnector(),
			brain:     companion.MockBrain{},
			Info:      ProviderInfo{Name: config.LiveProviderMock, Detail: detail},
		}
	}

	switch cfg.LiveProvider {
	case config.LiveProviderMock:
		return mock("mock"), nil
	case config.LiveProviderGemini, config.LiveProviderAuto, "":
		if !cfg.UseGemini() {
			return mock("mock (no GEMINI_API_KEY)"), nil
		}
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			LiveModel:  cfg.GeminiLiveModel,
			ChatModel:  cfg.GeminiChatModel,
			ImageModel: cfg.GeminiImageModel,
			Voice:      cfg.GeminiVoiceName,
		}, logger)
		if err != nil {
			return liveSetup{}, fmt.Errorf("gemini client init failed: %w", err)
		}
		gc := client.Config()
		return liveSetup{
			connector: client.LiveConnector(),
			brain:     client.Brain(),
			Info: ProviderInfo{
				Name:   config.LiveProviderGemini,
				Detail: fmt.Sprintf("gemini live (%s, chat %s)", gc.LiveModel, gc.ChatModel),
				Voice:  gc.Voice,
			},
		}, nil
	default:
		return liveSetup{}, fmt.Errorf("invalid LIVE_PROVIDER: %q (expected auto|gemini|mock)", cfg.LiveProvider)
	}
}

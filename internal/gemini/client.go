// Package gemini adapts the Google Gen AI SDK to the live session and
// companion brain interfaces.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/ent0n29/kindred/internal/reliability"
)

type Config struct {
	APIKey     string
	LiveModel  string
	ChatModel  string
	ImageModel string
	// Voice is the prebuilt voice used when a session does not name one.
	Voice string
}

const (
	defaultLiveModel  = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultChatModel  = "gemini-2.5-flash"
	defaultImageModel = "imagen-4.0-generate-001"
	defaultVoice      = "Aoede"
)

// Client wraps one genai client shared by the live connector and the brain.
type Client struct {
	cfg    Config
	genai  *genai.Client
	logger *zap.Logger
}

func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(cfg.LiveModel) == "" {
		cfg.LiveModel = defaultLiveModel
	}
	if strings.TrimSpace(cfg.ChatModel) == "" {
		cfg.ChatModel = defaultChatModel
	}
	if strings.TrimSpace(cfg.ImageModel) == "" {
		cfg.ImageModel = defaultImageModel
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = defaultVoice
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{cfg: cfg, genai: client, logger: logger.With(zap.String("component", "gemini"))}, nil
}

func (c *Client) Config() Config { return c.cfg }

// isRetryable reports whether a genai call failed for a transient reason.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return reliability.IsRetryableHTTPStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return reliability.IsRetryableHTTPStatus(apiErrPtr.Code)
	}
	return false
}

package reminders

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// NewStore creates a redis-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, redisURL string, logger *zap.Logger) (Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewInMemoryStore(), nil
	}
	return NewRedisStore(ctx, redisURL, logger)
}

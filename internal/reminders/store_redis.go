package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dueKey         = "kindred:reminders:due"
	reminderKey    = "kindred:reminder:"
	userIndexKey   = "kindred:reminders:user:"
	connectTimeout = 5 * time.Second
)

// RedisStore keeps reminders in a sorted set scored by due time, with the
// payload stored beside it and a per-user index.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(ctx context.Context, redisURL string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return newRedisStore(client, logger), nil
}

func newRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger.With(zap.String("component", "reminders_redis"))}
}

func (s *RedisStore) Add(ctx context.Context, r Reminder) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reminder: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, reminderKey+r.ID, payload, 0)
		pipe.SAdd(ctx, userIndexKey+r.UserID, r.ID)
		pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(r.DueAt.UnixMilli()), Member: r.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("add reminder: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, userID string) ([]Reminder, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	out := make([]Reminder, 0, len(ids))
	for _, id := range ids {
		r, err := s.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	sortByDue(out)
	return out, nil
}

func (s *RedisStore) TakeDue(ctx context.Context, now time.Time) ([]Reminder, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}

	var out []Reminder
	for _, id := range ids {
		// ZRem is the claim: only the caller that removes the member delivers it.
		removed, err := s.client.ZRem(ctx, dueKey, id).Result()
		if err != nil {
			return out, fmt.Errorf("claim reminder %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		r, err := s.load(ctx, id)
		if errors.Is(err, redis.Nil) {
			s.logger.Warn("due reminder without payload", zap.String("reminder_id", id))
			continue
		}
		if err != nil {
			return out, err
		}
		if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, reminderKey+id)
			pipe.SRem(ctx, userIndexKey+r.UserID, id)
			return nil
		}); err != nil {
			s.logger.Warn("cleanup delivered reminder failed", zap.String("reminder_id", id), zap.Error(err))
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) load(ctx context.Context, id string) (Reminder, error) {
	raw, err := s.client.Get(ctx, reminderKey+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Reminder{}, err
		}
		return Reminder{}, fmt.Errorf("load reminder %s: %w", id, err)
	}
	var r Reminder
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reminder{}, fmt.Errorf("decode reminder %s: %w", id, err)
	}
	return r, nil
}

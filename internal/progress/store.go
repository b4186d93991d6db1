// Package progress persists publish attempt snapshots across independent
// API invocations. Entries are keyed by the opaque processing key and carry
// a TTL; abandoned attempts expire instead of being cleaned up.
package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maheshrc27/instapress/internal/models"
)

type Store interface {
	Put(ctx context.Context, attempt *models.PublishAttempt, ttl time.Duration) error
	// Get returns (nil, nil) when the key is unknown or expired.
	Get(ctx context.Context, key string) (*models.PublishAttempt, error)
	Delete(ctx context.Context, key string) error

	// ClaimPublishing atomically acquires the publish lock for a key. It must
	// be a conditional write, never a read-then-write, so that two concurrent
	// pollers cannot both observe an unclaimed flag.
	ClaimPublishing(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleasePublishing(ctx context.Context, key string) error
}

const (
	attemptKeyPrefix = "publish:attempt:"
	lockKeyPrefix    = "publish:lock:"
)

type redisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) Store {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Put(ctx context.Context, attempt *models.PublishAttempt, ttl time.Duration) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if err := s.rdb.Set(ctx, attemptKeyPrefix+attempt.ProcessingKey, data, ttl).Err(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) (*models.PublishAttempt, error) {
	data, err := s.rdb.Get(ctx, attemptKeyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	var attempt models.PublishAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &attempt, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, attemptKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (s *redisStore) ClaimPublishing(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKeyPrefix+key, "1", ttl).Result()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return ok, nil
}

func (s *redisStore) ReleasePublishing(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, lockKeyPrefix+key).Err(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

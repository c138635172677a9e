package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"checkin/pkg/platform/sentinel"
)

// DefaultKey is where the gate lives in Redis.
const DefaultKey = "checkin:gate:enabled"

// Redis shares the gate across server replicas. A missing key reads as enabled.
type Redis struct {
	client redis.UniversalClient
	key    string
}

func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

func (s *Redis) Get(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get gate state: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return val == "1", nil
}

func (s *Redis) Set(ctx context.Context, enabled bool) error {
	val := "0"
	if enabled {
		val = "1"
	}
	if err := s.client.Set(ctx, s.key, val, 0).Err(); err != nil {
		return fmt.Errorf("set gate state: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

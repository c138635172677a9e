package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"checkin/pkg/platform/sentinel"
)

const keyPrefix = "checkin:idem:"

// Redis shares claimed request tokens across replicas with SET NX EX.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim request token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return ok, nil
}

func (s *Redis) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release request token: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

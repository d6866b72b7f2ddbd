package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipecd-crm/wfm/pkg/lock"
	"github.com/redis/go-redis/v9"
)

// NewLocker builds the per-workflow lock manager. The returned close function releases
// the Redis client, if any.
//
//nolint:ireturn // The locker implementation is selected at runtime
func NewLocker(ctx context.Context, backend, redisURL string, ttl time.Duration, logger *slog.Logger) (lock.Locker, func() error, error) {
	switch backend {
	case "", "local":
		return lock.NewLocal(), func() error { return nil }, nil
	case "redis":
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
		}

		client := redis.NewClient(opts)

		err = client.Ping(ctx).Err()
		if err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		return lock.NewRedis(client, logger.With("module", "redis_lock"), lock.WithTTL(ttl)), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock backend: %s", backend)
	}
}

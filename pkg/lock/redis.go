package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL     = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
	defaultRedisPrefix  = "wfm:lock:"
)

// releaseScript deletes the key only while it still holds our token, so a lock that
// expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the expiry only while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared between processes through a Redis server.
type Redis struct {
	client       *redis.Client
	logger       *slog.Logger
	ttl          time.Duration
	pollInterval time.Duration
	renewEvery   time.Duration
	prefix       string
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithTTL bounds how long a crashed holder can keep a lock. A live holder renews
// its lease every third of the TTL until it unlocks, so long reorders stay exclusive.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithPollInterval sets the retry interval while waiting for a held lock.
func WithPollInterval(interval time.Duration) RedisOption {
	return func(r *Redis) {
		r.pollInterval = interval
	}
}

// WithRenewInterval overrides how often a held lock's TTL is refreshed.
func WithRenewInterval(interval time.Duration) RedisOption {
	return func(r *Redis) {
		r.renewEvery = interval
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis creates a Redis-backed locker.
func NewRedis(client *redis.Client, logger *slog.Logger, opts ...RedisOption) *Redis {
	r := &Redis{
		client:       client,
		logger:       logger,
		ttl:          defaultRedisTTL,
		pollInterval: defaultPollInterval,
		prefix:       defaultRedisPrefix,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.renewEvery <= 0 {
		r.renewEvery = r.ttl / 3
	}

	return r
}

// Lock polls SET NX until the key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := r.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		acquired, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", key, err)
		}

		if acquired {
			return r.hold(redisKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w %q: %w", ErrLockTimeout, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold keeps the lease alive in the background and returns the matching Unlock.
func (r *Redis) hold(redisKey, token string) Unlock {
	renewCtx, stopRenewing := context.WithCancel(context.Background())
	renewed := make(chan struct{})

	go func() {
		defer close(renewed)
		r.renew(renewCtx, redisKey, token)
	}()

	var (
		once sync.Once
		err  error
	)

	return func() error {
		once.Do(func() {
			stopRenewing()
			<-renewed

			// The caller's context may already be cancelled; releasing must still happen.
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl)
			defer cancel()

			released, runErr := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Int()
			if runErr != nil {
				err = fmt.Errorf("failed to release lock %q: %w", redisKey, runErr)

				return
			}

			if released == 0 {
				r.logger.WarnContext(ctx, "lock expired before release", "key", redisKey)
			}
		})

		return err
	}
}

// renew extends the TTL every renewEvery until ctx is done or the lease is lost.
func (r *Redis) renew(ctx context.Context, redisKey, token string) {
	ticker := time.NewTicker(r.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		extended, err := extendScript.Run(ctx, r.client, []string{redisKey}, token, r.ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			r.logger.WarnContext(ctx, "failed to renew lock", "key", redisKey, "error", err)

			continue
		}

		if extended == 0 {
			r.logger.WarnContext(ctx, "lock lost before renewal", "key", redisKey)

			return
		}
	}
}

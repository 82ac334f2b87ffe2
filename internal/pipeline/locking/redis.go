package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"
)

const (
	backendRedis = "redis"
	keyPrefix    = "pipeline:lock:stage:"

	minPollInterval = 5 * time.Millisecond
	maxPollInterval = 50 * time.Millisecond
)

// releaseScript deletes a lock key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis serializes scopes across API instances with SET NX PX token locks.
// The TTL bounds how long a crashed holder can block a stage.
type Redis struct {
	client   redis.UniversalClient
	timeout  time.Duration
	ttl      time.Duration
	observer Observer
	log      *logger.Logger
}

// NewRedis creates a distributed locker on top of an existing client.
// A nil log drops release failures.
func NewRedis(client redis.UniversalClient, timeout, ttl time.Duration, observer Observer, log *logger.Logger) *Redis {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{client: client, timeout: timeout, ttl: ttl, observer: observer, log: log}
}

func lockKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Acquire takes every key in canonical order or none of them.
func (r *Redis) Acquire(ctx context.Context, keys ...uuid.UUID) (Release, error) {
	start := time.Now()
	acquireCtx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	token := uuid.NewString()
	ordered := Canonical(keys)
	held := make([]string, 0, len(ordered))

	for _, id := range ordered {
		key := lockKey(id)
		if err := r.acquireOne(acquireCtx, key, token); err != nil {
			r.release(held, token)
			return nil, err
		}
		held = append(held, key)
	}

	if r.observer != nil {
		r.observer.LockWait(backendRedis, time.Since(start))
	}
	return once(func() { r.release(held, token) }), nil
}

func (r *Redis) acquireOne(ctx context.Context, key, token string) error {
	interval := minPollInterval
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return acquireErr(ctx)
			}
			return fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return acquireErr(ctx)
		case <-timer.C:
		}
		if interval < maxPollInterval {
			interval *= 2
		}
	}
}

// release runs on a fresh context so a cancelled request still frees its keys.
func (r *Redis) release(keys []string, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		deleted, err := releaseScript.Run(ctx, r.client, []string{keys[i]}, token).Int64()
		switch {
		case err != nil:
			r.log.Warn("failed to release stage lock, left to expire",
				"key", keys[i], "ttl", r.ttl, "error", err)
		case deleted == 0:
			// The TTL ran out while we held the key.
			r.log.Warn("stage lock expired before release", "key", keys[i], "ttl", r.ttl)
		}
	}
}

var _ Locker = (*Redis)(nil)

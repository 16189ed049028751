package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockLost is returned when the lock expired or was taken over while the
// callback was still running. The callback's context is cancelled at that point.
var ErrLockLost = errors.New("lock: ownership lost")

// Both scripts act only while KEYS[1] still holds this holder's token.
var (
	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)
	extendScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker shared by every API replica. While fn runs the key's TTL
// is extended every ttl/3, so a slow finalize does not let a second terminal in.
type Redis struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock implements Locker. It polls every RetryBackoff until the key is
// free or ctx ends.
func (l Redis) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return ErrNoCallback
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.Prefix + key
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(runCtx, cancel, key, token, ttl)
	}()

	err := fn(runCtx)
	cancel(nil)
	wg.Wait()
	l.release(key, token)

	if errors.Is(context.Cause(runCtx), ErrLockLost) {
		if err == nil {
			return ErrLockLost
		}
		return fmt.Errorf("%w: %w", ErrLockLost, err)
	}
	return err
}

func (l Redis) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			return nil
		}
		timer.Reset(backoff)
	}
}

// keepAlive extends the key until ctx ends. A failed extension that finds a
// different owner cancels ctx with ErrLockLost; transport errors are retried
// on the next tick.
func (l Redis) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := extendScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
		if err == nil && n == 0 {
			cancel(ErrLockLost)
			return
		}
	}
}

func (l Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}

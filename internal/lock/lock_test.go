package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/lock"
)

func newRedisLocker(t *testing.T) (lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Redis{R: client, Prefix: "lock:", RetryBackoff: 5 * time.Millisecond}, mr
}

func assertSerialized(t *testing.T, locker lock.Locker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	errs := make(chan error, 2)

	go func() {
		errs <- locker.WithLock(ctx, "order-1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		errs <- locker.WithLock(ctx, "order-1", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestRedisWithLockSerializes(t *testing.T) {
	locker, _ := newRedisLocker(t)
	assertSerialized(t, locker)
}

func TestLocalWithLockSerializes(t *testing.T) {
	assertSerialized(t, &lock.Local{})
}

func TestRedisLockReleasedAfterError(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()
	err := locker.WithLock(ctx, "order-2", time.Second, func(context.Context) error {
		require.True(t, mr.Exists("lock:order-2"))
		return context.DeadlineExceeded
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, mr.Exists("lock:order-2"))
}

func TestLocalLockHonoursContext(t *testing.T) {
	var locker lock.Local
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = locker.WithLock(context.Background(), "k", 0, func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "k", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(hold)
}

func TestLocalDifferentKeysDoNotBlock(t *testing.T) {
	var locker lock.Local
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := locker.WithLock(ctx, "a", 0, func(ctx context.Context) error {
		return locker.WithLock(ctx, "b", 0, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestNilCallback(t *testing.T) {
	var locker lock.Local
	require.ErrorIs(t, locker.WithLock(context.Background(), "k", 0, nil), lock.ErrNoCallback)
}

func TestRedisLockExtendsWhileHeld(t *testing.T) {
	locker, mr := newRedisLocker(t)
	err := locker.WithLock(context.Background(), "slow-finalize", 30*time.Millisecond, func(context.Context) error {
		mr.SetTTL("lock:slow-finalize", time.Millisecond)
		require.Eventually(t, func() bool {
			return mr.TTL("lock:slow-finalize") == 30*time.Millisecond
		}, time.Second, 5*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	require.False(t, mr.Exists("lock:slow-finalize"))
}

func TestRedisLockLostCancelsCallback(t *testing.T) {
	locker, mr := newRedisLocker(t)
	err := locker.WithLock(context.Background(), "stolen", 30*time.Millisecond, func(ctx context.Context) error {
		require.NoError(t, mr.Set("lock:stolen", "other-terminal"))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	})
	require.ErrorIs(t, err, lock.ErrLockLost)
	require.ErrorIs(t, err, context.Canceled)

	got, getErr := mr.Get("lock:stolen")
	require.NoError(t, getErr)
	require.Equal(t, "other-terminal", got)
}

package checkout_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/checkout"
)

func exerciseStore(t *testing.T, store checkout.SessionStore) {
	t.Helper()
	ctx := context.Background()
	s := newSession(t)

	_, err := store.Get(ctx, s.ID)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)

	require.NoError(t, s.SetTip(checkout.TipCustom, 2))
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, s.Totals, loaded.Totals)
	require.Equal(t, checkout.TipCustom, loaded.Tip.Mode)

	loaded.Step = checkout.StepPayment
	again, err := store.ByOrder(ctx, s.OrderID)
	require.NoError(t, err)
	require.Equal(t, checkout.StepSummary, again.Step)

	require.NoError(t, store.Delete(ctx, s))
	_, err = store.ByOrder(ctx, s.OrderID)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, checkout.NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := checkout.RedisStore{Client: client, Prefix: "checkout:", TTL: time.Minute}
	exerciseStore(t, store)

	s := newSession(t)
	require.NoError(t, store.Save(context.Background(), s))
	require.Equal(t, time.Minute, mr.TTL("checkout:session:"+s.ID))
	mr.FastForward(2 * time.Minute)
	_, err = store.Get(context.Background(), s.ID)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

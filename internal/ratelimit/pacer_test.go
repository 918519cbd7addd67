package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalPacerSpacesCalls(t *testing.T) {
	p := NewLocalPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestLocalPacerZeroDelayNeverBlocks(t *testing.T) {
	p := NewLocalPacer(0)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLocalPacerHonoursCancellation(t *testing.T) {
	p := NewLocalPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Wait(ctx))
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestNewPacerFallsBackWithoutRedis(t *testing.T) {
	p := NewPacer(Params{
		Config: config.Config{Workflow: config.WorkflowConfig{CallDelay: time.Second, DistributedPacing: true}},
		Log:    zap.NewNop(),
	})
	_, ok := p.(*LocalPacer)
	assert.True(t, ok)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockerExclusive(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	l := NewLocker(client)
	key := "test:lock:" + t.Name()

	token, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	holder, err := l.Holder(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, l.owner, holder)

	require.NoError(t, l.Release(ctx, key, "wrong-token"))
	_, ok, _ = l.TryLock(ctx, key, time.Minute)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, key, token))
	holder, err = l.Holder(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, holder)
	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	_ = client.Del(ctx, key).Err()
}

func TestDistributedPacerSharesBudget(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := "test:pacer:" + t.Name()
	t.Cleanup(func() { _ = client.Del(ctx, key).Err() })

	a := NewDistributedPacer(NewTokenBucket(client), key, 40*time.Millisecond, zap.NewNop())
	b := NewDistributedPacer(NewTokenBucket(client), key, 40*time.Millisecond, zap.NewNop())

	start := time.Now()
	require.NoError(t, a.Wait(ctx))
	require.NoError(t, b.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestLockerNilClient(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	var l *Locker
	_, _, err := l.TryLock(context.Background(), "k", time.Second)
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	_, err = l.Holder(context.Background(), "k")
	assert.ErrorIs(t, err, ErrLockNotConfigured)
	assert.NoError(t, l.Release(context.Background(), "k", "t"))
}

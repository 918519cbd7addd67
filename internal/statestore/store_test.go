package statestore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fullStore interface {
	Store
	Incrementer
	Lister
}

func setupGorm(t *testing.T) *Gorm {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Property{}))
	return NewGorm(db)
}

func exerciseStore(t *testing.T, s fullStore) {
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "plan:tier")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "plan:tier", "trial"))
	require.NoError(t, s.Set(ctx, "plan:tier", "pro"))
	v, ok, err := s.Get(ctx, "plan:tier")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "pro", v)

	total, err := s.IncrBy(ctx, "usage:2026-10-19:search", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	total, err = s.IncrBy(ctx, "usage:2026-10-19:search", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	keys, err := s.Keys(ctx, "usage:2026-10-19:")
	require.NoError(t, err)
	assert.Equal(t, []string{"usage:2026-10-19:search"}, keys)

	require.NoError(t, s.Delete(ctx, "plan:tier"))
	require.NoError(t, s.Delete(ctx, "plan:tier"))
	_, ok, err = s.Get(ctx, "plan:tier")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestGormStore(t *testing.T) {
	exerciseStore(t, setupGorm(t))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	prefix := "test:" + strconv.Itoa(os.Getpid()) + ":"
	exerciseStore(t, NewRedis(client, prefix))
}

func TestIncrByRejectsNonInteger(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Set(ctx, "k", "abc"))
	_, err := s.IncrBy(ctx, "k", 1)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestMemoryIncrByConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrBy(ctx, "n", 1)
		}()
	}
	wg.Wait()
	v, _, _ := s.Get(ctx, "n")
	assert.Equal(t, "50", v)
}

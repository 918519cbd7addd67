package ratelimit

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// BatchLockKey guards enrichment batches across processes. Callers prepend
// the configured redis prefix.
const BatchLockKey = "lock:enrichment_batch"

// compare-and-delete so a lock that expired and was retaken is left alone
const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrLockNotConfigured = errors.New("lock_not_configured")
	ErrInvalidLock       = errors.New("invalid_lock")
)

// Locker is a single-holder lease in redis. Tokens carry the holder's
// host and pid so a blocked caller can report who is running.
type Locker struct {
	client *redis.Client
	script *redis.Script
	owner  string
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	host, _ := os.Hostname()
	if host == "" {
		host = "unknown"
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		owner:  host + "/" + strconv.Itoa(os.Getpid()),
	}
}

// TryLock takes key for ttl. ok is false when someone else holds it.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if strings.TrimSpace(key) == "" || ttl <= 0 {
		return "", false, ErrInvalidLock
	}

	token = l.owner + "#" + uuid.NewString()
	ok, err = l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil || key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}

// Holder returns the owner recorded in the current token, or "" when the
// key is free.
func (l *Locker) Holder(ctx context.Context, key string) (string, error) {
	if l == nil || l.client == nil {
		return "", ErrLockNotConfigured
	}
	token, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	owner, _, _ := strings.Cut(token, "#")
	return owner, nil
}

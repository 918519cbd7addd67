package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/prospector/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const pacerKey = "pacer:external_calls"

// Pacer spaces outbound calls. Wait blocks until the next call may start.
type Pacer interface {
	Wait(ctx context.Context) error
}

// LocalPacer enforces a fixed minimum delay between calls in this process.
type LocalPacer struct {
	limiter *rate.Limiter
}

// NewLocalPacer lets the first call through immediately. A non-positive delay
// disables pacing.
func NewLocalPacer(delay time.Duration) *LocalPacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &LocalPacer{limiter: rate.NewLimiter(limit, 1)}
}

func (p *LocalPacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// DistributedPacer shares one call budget across processes through a redis
// token bucket, on top of the local delay.
type DistributedPacer struct {
	local  *LocalPacer
	bucket *TokenBucket
	key    string
	rate   float64
	log    *zap.Logger
}

func NewDistributedPacer(bucket *TokenBucket, key string, delay time.Duration, log *zap.Logger) *DistributedPacer {
	r := 1.0
	if delay > 0 {
		r = float64(time.Second) / float64(delay)
	}
	return &DistributedPacer{
		local:  NewLocalPacer(delay),
		bucket: bucket,
		key:    key,
		rate:   r,
		log:    log,
	}
}

func (p *DistributedPacer) Wait(ctx context.Context) error {
	if err := p.local.Wait(ctx); err != nil {
		return err
	}
	for {
		res, err := p.bucket.Allow(ctx, p.key, p.rate, 1)
		if err != nil {
			// The local delay still holds when redis is unreachable.
			p.log.Warn("distributed pacer unavailable", zap.Error(err))
			return nil
		}
		if res.Allowed {
			return nil
		}
		wait := res.RetryAfter
		if wait <= 0 {
			wait = 50 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func NewPacer(p Params) Pacer {
	log := p.Log.Named("ratelimit.pacer")
	delay := p.Config.Workflow.CallDelay
	if p.Config.Workflow.DistributedPacing {
		if bucket := NewTokenBucket(p.Redis); bucket != nil {
			log.Info("using distributed pacing", zap.Duration("delay", delay))
			return NewDistributedPacer(bucket, p.Config.Redis.Prefix+pacerKey, delay, log)
		}
		log.Warn("distributed pacing requested without redis; pacing locally")
	}
	return NewLocalPacer(delay)
}

func ProvideLocker(client *redis.Client) *Locker {
	return NewLocker(client)
}

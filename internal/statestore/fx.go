package statestore

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/prospector/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("statestore",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
	fx.Invoke(registerRedisLifecycle),
)

type Params struct {
	fx.In

	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// New selects the backing store from STATE_STORE.
func New(p Params) (Store, error) {
	log := p.Log.Named("statestore")
	switch p.Config.StateStore {
	case "", "gorm":
		log.Info("using gorm state store")
		return NewGorm(p.DB), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("state store redis requires REDIS_ADDR")
		}
		log.Info("using redis state store", zap.String("prefix", p.Config.Redis.Prefix))
		return NewRedis(p.Redis, p.Config.Redis.Prefix), nil
	case "memory":
		log.Warn("using in-memory state store; usage and tier state are lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported state store %q", p.Config.StateStore)
	}
}

func registerRedisLifecycle(lc fx.Lifecycle, client *redis.Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}

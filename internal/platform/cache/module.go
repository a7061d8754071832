package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/eventcrew/feegate/pkg/config"
	"github.com/eventcrew/feegate/pkg/keyedstore"
	"github.com/eventcrew/feegate/pkg/ratelimit"
)

// NewStore picks the keyed store backing the rate limiter: redis when an
// address is configured (shared across instances), otherwise the
// in-process map. A failed redis ping is logged but not fatal; the rate
// limiter fails open anyway.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) keyedstore.Store {
	if cfg.Redis.Addr == "" {
		log.Infow("using in-process keyed store; rate limits are per instance")
		return keyedstore.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warnw("could not reach redis, rate limiting will fail open", "addr", cfg.Redis.Addr, "err", err)
	} else {
		log.Infow("connected to redis", "addr", cfg.Redis.Addr)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return keyedstore.NewRedisStore(client)
}

func NewLimiter(store keyedstore.Store, log *zap.SugaredLogger) *ratelimit.Limiter {
	return ratelimit.New(store, log)
}

var Module = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(NewLimiter),
)

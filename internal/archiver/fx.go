package archiver

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coldline/internal/archiver/lock"
	"github.com/smallbiznis/coldline/internal/config"
	"github.com/smallbiznis/coldline/internal/config/policy"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("archiver",
	fx.Provide(policy.NewHolder),
	fx.Provide(ProvideLock),
	fx.Provide(New),
)

func ProvideLock(cfg config.Config, log *zap.Logger) (lock.CycleLock, error) {
	if cfg.Archive.Lock == config.LockRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("cycle lock: redis", zap.String("addr", cfg.Redis.Addr))
		return lock.NewRedis(client, cfg.Archive.LockTTL)
	}
	return lock.NewLocal(), nil
}

// StartLoop runs the migration loop for the life of the process. Binaries
// that only serve the API omit this invoke and keep the engine for manual
// triggers.
func StartLoop(lc fx.Lifecycle, engine *Engine) {
	loopCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go engine.RunForever(loopCtx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

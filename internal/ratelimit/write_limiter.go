package ratelimit

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coldline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyRecordWrites = "coldline:ratelimit:writes"

var Module = fx.Module("rate.limit",
	fx.Provide(NewWriteLimiter),
)

// WriteLimiter throttles record ingest across all API instances. A nil or
// disabled limiter admits everything.
type WriteLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

func NewWriteLimiter(cfg config.Config, log *zap.Logger) *WriteLimiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Redis.Addr),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	log.Info("write rate limiter enabled",
		zap.Float64("rate", cfg.RateLimit.WriteRate),
		zap.Int("burst", cfg.RateLimit.WriteBurst),
	)
	return &WriteLimiter{
		bucket: NewTokenBucket(client),
		log:    log.Named("ratelimit"),
		rate:   cfg.RateLimit.WriteRate,
		burst:  cfg.RateLimit.WriteBurst,
	}
}

// Allow reports whether one more write may proceed. Limiter errors fail
// open: a broken redis must not take the write path down with it.
func (l *WriteLimiter) Allow(ctx context.Context) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}

	res, err := l.bucket.Allow(ctx, keyRecordWrites, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limit check failed, admitting write", zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}

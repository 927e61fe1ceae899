package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const cycleLockKey = "coldline:archiver:cycle"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is a cross-instance cycle lock built on SET NX with a fenced
// release: only the token holder can delete the key, so an expired holder
// cannot release somebody else's cycle.
type Redis struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &Redis{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
	}, nil
}

func (l *Redis) TryAcquire(ctx context.Context) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, cycleLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(releaseCtx context.Context) {
		_ = l.script.Run(releaseCtx, l.client, []string{cycleLockKey}, token).Err()
	}
	return release, true, nil
}

var _ CycleLock = (*Redis)(nil)

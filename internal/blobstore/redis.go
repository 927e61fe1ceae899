package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "coldline:blob:"

// Redis stores blobs as snappy-compressed values keyed by path. Compression
// is internal; callers see the exact bytes they stored. Keys are written
// without TTL: the cold tier retains objects until an external lifecycle
// policy says otherwise.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Put(ctx context.Context, path string, data []byte) error {
	compressed := snappy.Encode(nil, data)
	return s.client.Set(ctx, redisKeyPrefix+path, compressed, 0).Err()
}

func (s *Redis) Get(ctx context.Context, path string) ([]byte, error) {
	compressed, err := s.client.Get(ctx, redisKeyPrefix+path).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("corrupt blob at %s: %w", path, err)
	}
	return data, nil
}

func (s *Redis) Exists(ctx context.Context, path string) (bool, error) {
	count, err := s.client.Exists(ctx, redisKeyPrefix+path).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

var _ Store = (*Redis)(nil)

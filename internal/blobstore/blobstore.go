// Package blobstore provides the cold-tier adapter: a path-keyed blob store
// with put/get/exists semantics. Archival copies are never deleted by this
// system, so the interface deliberately has no Delete.
package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/coldline/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ErrNotFound reports absence of an object at a path. Callers distinguish it
// from transport failures with errors.Is.
var ErrNotFound = errors.New("blob_not_found")

// Store is the cold-tier capability surface. Put is overwrite-idempotent:
// writing the same bytes to the same path twice produces the same state.
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
}

var Module = fx.Module("blobstore",
	fx.Provide(New),
)

// New selects the configured backend.
func New(cfg config.Config, log *zap.Logger) (Store, error) {
	switch cfg.Archive.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Info("cold tier backend: redis", zap.String("addr", cfg.Redis.Addr))
		return NewRedis(client), nil
	case config.BackendFilesystem:
		store, err := NewFilesystem(cfg.Archive.Root)
		if err != nil {
			return nil, err
		}
		log.Info("cold tier backend: filesystem", zap.String("root", cfg.Archive.Root))
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.Archive.Backend)
	}
}

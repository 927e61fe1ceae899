// Package lock guards migration cycles against overlap. Two cycles racing
// to delete the same hot-tier records after both confirmed cold copies would
// be benign but wasteful, so cycles are mutually exclusive: in-process by
// default, via redis when several archiver instances share the tiers.
package lock

import (
	"context"
	"sync"
)

// CycleLock serializes migration cycles. Release is only valid when acquired
// is true.
type CycleLock interface {
	TryAcquire(ctx context.Context) (release func(context.Context), acquired bool, err error)
}

// Local is a single-process cycle lock.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryAcquire(_ context.Context) (func(context.Context), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) { l.mu.Unlock() }, true, nil
}

var _ CycleLock = (*Local)(nil)

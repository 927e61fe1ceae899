package domain

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors. ErrNotFound is tier-local: a single store reporting
// absence. ErrRecordNotFound means absence was confirmed in both tiers and
// is the only not-found variant callers ever see.
var (
	ErrNotFound         = errors.New("not_found")
	ErrRecordNotFound   = errors.New("record_not_found")
	ErrRecordExists     = errors.New("record_exists")
	ErrStoreUnavailable = errors.New("store_unavailable")
	ErrInvalidRecordID  = errors.New("invalid_record_id")
	ErrInvalidTimestamp = errors.New("invalid_timestamp")
)

// Lookup is a resolved record together with the tier that served it.
type Lookup struct {
	Record Record `json:"record"`
	Tier   Tier   `json:"tier"`
}

type PutRequest struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Service is the record surface exposed to the API layer. Get is the
// tier-fallback resolver; Restore rehydrates an archived record into the hot
// tier without touching the archival copy.
type Service interface {
	Put(ctx context.Context, req PutRequest) (*Record, error)
	// Create rejects an already-resident id with ErrRecordExists.
	Create(ctx context.Context, req PutRequest) (*Record, error)
	Get(ctx context.Context, id string) (*Lookup, error)
	Restore(ctx context.Context, id string) (*Record, error)
}

// PrimaryStore is the hot-tier capability surface. Absence is reported as
// ErrNotFound, never folded into generic errors.
type PrimaryStore interface {
	Get(ctx context.Context, id string) (*Record, error)
	// Put is insert-or-overwrite; writing the same record twice is a no-op.
	Put(ctx context.Context, record *Record) error
	// Insert is strict: an existing id yields ErrRecordExists.
	Insert(ctx context.Context, record *Record) error
	Delete(ctx context.Context, id string) error
	// QueryOlderThan returns up to limit records with Timestamp before
	// cutoff. The result is a fresh snapshot each call, not a resumable
	// cursor.
	QueryOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Record, error)
}

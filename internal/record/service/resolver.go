package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/coldline/internal/blobstore"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"go.uber.org/zap"
)

// Get resolves a record regardless of tier: hot first, then cold. The two
// tiers report absence explicitly, so a fall-through here is always
// "expected absence", never a swallowed I/O failure.
//
// No coordination with an in-flight migration is needed. The engine
// confirms the cold copy before issuing the hot delete, so at every instant
// the record is readable from at least one tier; a read racing the delete
// finds it either still hot or already confirmed cold.
func (s *Service) Get(ctx context.Context, id string) (*recorddomain.Lookup, error) {
	if !recorddomain.ValidID(id) {
		return nil, recorddomain.ErrInvalidRecordID
	}

	record, err := s.primary.Get(ctx, id)
	switch {
	case err == nil:
		s.metrics.RecordLookup(ctx, string(recorddomain.TierHot))
		return &recorddomain.Lookup{Record: *record, Tier: recorddomain.TierHot}, nil
	case errors.Is(err, recorddomain.ErrNotFound):
		// Fall through to the cold tier.
	default:
		s.metrics.RecordLookup(ctx, "error")
		return nil, wrapUnavailable(err)
	}

	if cached, ok := s.coldCache.Get(id); ok {
		s.metrics.RecordLookup(ctx, string(recorddomain.TierCold))
		return &recorddomain.Lookup{Record: *cached, Tier: recorddomain.TierCold}, nil
	}

	data, err := s.blobs.Get(ctx, recorddomain.ArchivePath(id))
	switch {
	case err == nil:
	case errors.Is(err, blobstore.ErrNotFound):
		s.metrics.RecordLookup(ctx, "miss")
		return nil, recorddomain.ErrRecordNotFound
	default:
		s.metrics.RecordLookup(ctx, "error")
		return nil, wrapUnavailable(err)
	}

	record, err = recorddomain.UnmarshalArchive(data)
	if err != nil {
		s.log.Error("corrupt archive object",
			zap.String("record_id", id),
			zap.Error(err),
		)
		s.metrics.RecordLookup(ctx, "error")
		return nil, wrapUnavailable(err)
	}

	s.coldCache.Set(record)
	s.metrics.RecordLookup(ctx, string(recorddomain.TierCold))
	return &recorddomain.Lookup{Record: *record, Tier: recorddomain.TierCold}, nil
}

// wrapUnavailable marks transient tier failures so callers can distinguish
// "temporarily unavailable" from "does not exist".
func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", recorddomain.ErrStoreUnavailable, err)
}

package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/coldline/internal/blobstore"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"go.uber.org/zap"
)

// Restore rehydrates an archived record into the hot tier. The archival
// copy is left in place, which is what makes repeated restores safe: the
// operation is a pure read-then-upsert with the same end state every time.
// It needs no coordination with a running migration cycle; a record present
// in the cold tier is never in a state where deleting it is implied.
func (s *Service) Restore(ctx context.Context, id string) (*recorddomain.Record, error) {
	if !recorddomain.ValidID(id) {
		return nil, recorddomain.ErrInvalidRecordID
	}

	data, err := s.blobs.Get(ctx, recorddomain.ArchivePath(id))
	switch {
	case err == nil:
	case errors.Is(err, blobstore.ErrNotFound):
		s.metrics.RecordRestore(ctx, "miss")
		return nil, recorddomain.ErrRecordNotFound
	default:
		s.metrics.RecordRestore(ctx, "error")
		return nil, wrapUnavailable(err)
	}

	record, err := recorddomain.UnmarshalArchive(data)
	if err != nil {
		s.metrics.RecordRestore(ctx, "error")
		return nil, wrapUnavailable(err)
	}

	if err := s.primary.Put(ctx, record); err != nil {
		s.metrics.RecordRestore(ctx, "error")
		return nil, wrapUnavailable(err)
	}
	// The record is hot again and may be modified and re-archived; a cached
	// cold copy must not outlive that.
	s.coldCache.Delete(id)

	if jErr := s.journal.Observe(id, tierstate.StateRestored); jErr != nil {
		s.log.Debug("journal transition rejected",
			zap.String("record_id", id),
			zap.Error(jErr),
		)
	}

	s.metrics.RecordRestore(ctx, "ok")
	s.log.Info("record restored to hot tier", zap.String("record_id", id))
	return record, nil
}

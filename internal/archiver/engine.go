// Package archiver implements the migration engine: the batch job that
// moves aged records from the hot tier to the cold tier. The single
// load-bearing invariant is ordering: a record is deleted from the hot tier
// only after its cold-tier copy has been written and confirmed readable.
// Every failure mode short of that leaves the record resident and
// re-selectable by the next cycle, which is what makes the whole pipeline
// safe to re-run.
package archiver

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/coldline/internal/archiver/lock"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/clock"
	"github.com/smallbiznis/coldline/internal/config/policy"
	obsmetrics "github.com/smallbiznis/coldline/internal/observability/metrics"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrCycleInProgress reports that another cycle holds the guard.
	ErrCycleInProgress = errors.New("cycle_in_progress")
	// ErrConfirmFailed reports that the cold-tier write could not be
	// verified. The record stays resident.
	ErrConfirmFailed = errors.New("archive_confirm_failed")
	// ErrInvalidConfig reports missing engine dependencies.
	ErrInvalidConfig = errors.New("archiver: invalid configuration")
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Primary recorddomain.PrimaryStore
	Blobs   blobstore.Store
	Journal *tierstate.Journal
	Clock   clock.Clock
	Policy  *policy.Holder
	Lock    lock.CycleLock
}

// Engine runs migration cycles. Cycles are strictly sequential; the lock
// rejects overlap from manual triggers and from other instances.
type Engine struct {
	log     *zap.Logger
	primary recorddomain.PrimaryStore
	blobs   blobstore.Store
	journal *tierstate.Journal
	clock   clock.Clock
	policy  *policy.Holder
	lock    lock.CycleLock
}

func New(p Params) (*Engine, error) {
	if p.Log == nil || p.Primary == nil || p.Blobs == nil || p.Journal == nil || p.Clock == nil || p.Policy == nil || p.Lock == nil {
		return nil, ErrInvalidConfig
	}
	return &Engine{
		log:     p.Log.Named("archiver").With(zap.String("component", "archiver")),
		primary: p.Primary,
		blobs:   p.Blobs,
		journal: p.Journal,
		clock:   p.Clock,
		policy:  p.Policy,
		lock:    p.Lock,
	}, nil
}

// RunCycle selects eligible records and migrates them. A query failure
// aborts the cycle; per-record failures are counted and left for the next
// cycle to retry. The returned stats are complete even when err is non-nil.
func (e *Engine) RunCycle(ctx context.Context) (*CycleStats, error) {
	metrics := obsmetrics.Archiver()

	release, acquired, err := e.lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	if !acquired {
		metrics.IncCycleLocked()
		return nil, ErrCycleInProgress
	}
	defer release(context.WithoutCancel(ctx))

	pol := e.policy.Get()
	run := newCycleRun(e.clock.Now())
	e.logCycleStart(run, pol)
	metrics.IncCycleRun()
	defer func() {
		elapsed := e.clock.Now().Sub(run.startedAt)
		metrics.ObserveCycleDuration(elapsed)
		metrics.SetPurgePending(run.Stats().PurgePending)
		e.logCycleFinish(run, elapsed)
	}()

	cutoff := e.clock.Now().Add(-pol.Cutoff)
	candidates, err := e.selectCandidates(ctx, cutoff, pol)
	if err != nil {
		run.fail()
		metrics.IncRecordFailure(obsmetrics.ArchiveStageQuery)
		return run.Stats(), fmt.Errorf("query candidates: %w", err)
	}
	run.setCandidates(len(candidates))
	metrics.ObserveCandidates(len(candidates))

	var group errgroup.Group
	group.SetLimit(pol.Workers)
	for _, candidate := range candidates {
		// Cancellation takes effect between records, never inside the
		// copy-confirm-delete sequence of one.
		if ctx.Err() != nil {
			break
		}
		id := candidate.ID
		group.Go(func() error {
			e.archiveRecord(ctx, id, pol, run)
			return nil
		})
	}
	_ = group.Wait()

	if ctx.Err() != nil {
		return run.Stats(), ctx.Err()
	}
	return run.Stats(), nil
}

// selectCandidates issues the eligibility query and dedupes ids so two
// workers can never race on the same record within one cycle.
func (e *Engine) selectCandidates(ctx context.Context, cutoff time.Time, pol policy.ArchivePolicy) ([]recorddomain.Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, pol.OpTimeout)
	defer cancel()

	records, err := e.primary.QueryOlderThan(opCtx, cutoff, pol.BatchSize)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(records))
	deduped := records[:0]
	for _, record := range records {
		if _, dup := seen[record.ID]; dup {
			continue
		}
		seen[record.ID] = struct{}{}
		deduped = append(deduped, record)
	}
	return deduped, nil
}

// archiveRecord runs the per-record sequence: read, copy, confirm, delete.
// Each tier operation carries its own timeout. All failures are absorbed
// into the run counters so one bad record never aborts the batch.
func (e *Engine) archiveRecord(ctx context.Context, id string, pol policy.ArchivePolicy, run *cycleRun) {
	metrics := obsmetrics.Archiver()
	log := e.log.With(zap.String("record_id", id), zap.String("run_id", run.runID))

	record, err := e.readResident(ctx, id, pol)
	if err != nil {
		if errors.Is(err, recorddomain.ErrNotFound) {
			// Already migrated or deleted since the query snapshot.
			run.skip()
			return
		}
		run.fail()
		metrics.IncRecordFailure(obsmetrics.ArchiveStageRead)
		log.Warn("archive read failed", zap.Error(err))
		return
	}

	data, err := recorddomain.MarshalArchive(record)
	if err != nil {
		run.fail()
		metrics.IncRecordFailure(obsmetrics.ArchiveStageWrite)
		log.Error("archive marshal failed", zap.Error(err))
		return
	}
	path := recorddomain.ArchivePath(id)

	e.observe(id, tierstate.StateCopying)

	if err := e.writeBlob(ctx, path, data, pol); err != nil {
		e.observe(id, tierstate.StateResident)
		run.fail()
		metrics.IncRecordFailure(obsmetrics.ArchiveStageWrite)
		log.Warn("cold tier write failed, record stays resident", zap.Error(err))
		return
	}

	if err := e.confirmBlob(ctx, path, data, pol); err != nil {
		e.observe(id, tierstate.StateResident)
		run.fail()
		metrics.IncRecordFailure(obsmetrics.ArchiveStageConfirm)
		log.Warn("cold tier confirm failed, record stays resident", zap.Error(err))
		return
	}

	e.observe(id, tierstate.StateArchived)

	if err := e.deleteResident(ctx, id, pol); err != nil && !errors.Is(err, recorddomain.ErrNotFound) {
		// The record is safe in both tiers; the duplicate is purged by a
		// later cycle once the hot tier accepts the delete.
		run.purgePending()
		metrics.IncRecordFailure(obsmetrics.ArchiveStagePurge)
		log.Warn("archived but not yet purged", zap.String("path", path), zap.Error(err))
		return
	}

	run.archived()
	metrics.IncRecordArchived()
	log.Debug("record archived", zap.String("path", path))
}

func (e *Engine) readResident(ctx context.Context, id string, pol policy.ArchivePolicy) (*recorddomain.Record, error) {
	opCtx, cancel := context.WithTimeout(ctx, pol.OpTimeout)
	defer cancel()
	return e.primary.Get(opCtx, id)
}

func (e *Engine) writeBlob(ctx context.Context, path string, data []byte, pol policy.ArchivePolicy) error {
	opCtx, cancel := context.WithTimeout(ctx, pol.OpTimeout)
	defer cancel()
	return e.blobs.Put(opCtx, path, data)
}

// confirmBlob proves the cold copy is durably readable before any delete is
// issued. Existence alone would not catch silent truncation, so the stored
// bytes are read back and checksummed.
func (e *Engine) confirmBlob(ctx context.Context, path string, want []byte, pol policy.ArchivePolicy) error {
	opCtx, cancel := context.WithTimeout(ctx, pol.OpTimeout)
	defer cancel()

	exists, err := e.blobs.Exists(opCtx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmFailed, err)
	}
	if !exists {
		return fmt.Errorf("%w: object missing after write", ErrConfirmFailed)
	}

	stored, err := e.blobs.Get(opCtx, path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfirmFailed, err)
	}
	if sha256.Sum256(stored) != sha256.Sum256(want) {
		return fmt.Errorf("%w: checksum mismatch", ErrConfirmFailed)
	}
	return nil
}

func (e *Engine) deleteResident(ctx context.Context, id string, pol policy.ArchivePolicy) error {
	opCtx, cancel := context.WithTimeout(ctx, pol.OpTimeout)
	defer cancel()
	return e.primary.Delete(opCtx, id)
}

func (e *Engine) observe(id string, state tierstate.State) {
	if err := e.journal.Observe(id, state); err != nil {
		e.log.Debug("journal transition rejected",
			zap.String("record_id", id),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
}

// RunForever drives cycles on the policy's interval until ctx is cancelled.
// The interval is re-read every iteration so policy reloads take effect
// without a restart.
func (e *Engine) RunForever(ctx context.Context) {
	metrics := obsmetrics.Archiver()
	nextRun := e.clock.Now()

	for {
		// Lag is measured on the injected clock so it stays meaningful when
		// the clock is not wall time.
		if lag := e.clock.Now().Sub(nextRun); lag > 0 {
			metrics.ObserveRunLoopLag(lag)
		}
		if _, err := e.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, ErrCycleInProgress) {
				e.log.Debug("cycle skipped, another cycle in progress")
			} else {
				e.log.Warn("migration cycle failed", zap.Error(err))
			}
		}

		interval := e.policy.Get().RunInterval
		nextRun = e.clock.Now().Add(interval)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

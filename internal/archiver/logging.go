package archiver

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/coldline/internal/config/policy"
	"go.uber.org/zap"
)

// CycleStats summarizes one migration cycle.
type CycleStats struct {
	RunID        string `json:"run_id"`
	Candidates   int    `json:"candidates"`
	Archived     int    `json:"archived"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	PurgePending int    `json:"purge_pending"`
}

// cycleRun accumulates counters across concurrent workers.
type cycleRun struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	stats     CycleStats
}

func newCycleRun(now time.Time) *cycleRun {
	run := &cycleRun{
		runID:     ulid.Make().String(),
		startedAt: now,
	}
	run.stats.RunID = run.runID
	return run
}

func (r *cycleRun) setCandidates(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Candidates = count
}

func (r *cycleRun) archived() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Archived++
}

func (r *cycleRun) skip() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Skipped++
}

func (r *cycleRun) fail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Failed++
}

func (r *cycleRun) purgePending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.PurgePending++
}

func (r *cycleRun) Stats() *CycleStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	return &stats
}

func (e *Engine) logCycleStart(run *cycleRun, pol policy.ArchivePolicy) {
	e.log.Info("archiver.cycle.start",
		zap.String("run_id", run.runID),
		zap.Duration("cutoff", pol.Cutoff),
		zap.Int("batch_size", pol.BatchSize),
		zap.Int("workers", pol.Workers),
	)
}

func (e *Engine) logCycleFinish(run *cycleRun, elapsed time.Duration) {
	stats := run.Stats()
	fields := []zap.Field{
		zap.String("run_id", run.runID),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.Int("candidates", stats.Candidates),
		zap.Int("archived", stats.Archived),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("purge_pending", stats.PurgePending),
	}
	if stats.Failed > 0 || stats.PurgePending > 0 {
		e.log.Warn("archiver.cycle.finish", fields...)
		return
	}
	e.log.Info("archiver.cycle.finish", fields...)
}

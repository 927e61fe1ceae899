package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/clock"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// memPrimary is an in-memory hot tier with fault hooks.
type memPrimary struct {
	mu      sync.Mutex
	records map[string]recorddomain.Record

	getErr func(id string) error
	putErr func(id string) error
}

func newMemPrimary() *memPrimary {
	return &memPrimary{records: make(map[string]recorddomain.Record)}
}

func (p *memPrimary) Get(ctx context.Context, id string) (*recorddomain.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		if err := p.getErr(id); err != nil {
			return nil, err
		}
	}
	r, ok := p.records[id]
	if !ok {
		return nil, recorddomain.ErrNotFound
	}
	out := r
	return &out, nil
}

func (p *memPrimary) Put(ctx context.Context, record *recorddomain.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.putErr != nil {
		if err := p.putErr(record.ID); err != nil {
			return err
		}
	}
	p.records[record.ID] = *record
	return nil
}

func (p *memPrimary) Insert(ctx context.Context, record *recorddomain.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.putErr != nil {
		if err := p.putErr(record.ID); err != nil {
			return err
		}
	}
	if _, ok := p.records[record.ID]; ok {
		return recorddomain.ErrRecordExists
	}
	p.records[record.ID] = *record
	return nil
}

func (p *memPrimary) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.records[id]; !ok {
		return recorddomain.ErrNotFound
	}
	delete(p.records, id)
	return nil
}

func (p *memPrimary) has(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.records[id]
	return ok
}

func (p *memPrimary) QueryOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]recorddomain.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recorddomain.Record
	for _, r := range p.records {
		if r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

type serviceFixture struct {
	svc     *Service
	primary *memPrimary
	blobs   *blobstore.Memory
	journal *tierstate.Journal
	clock   *clock.FakeClock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &serviceFixture{
		primary: newMemPrimary(),
		blobs:   blobstore.NewMemory(),
		journal: tierstate.NewJournal(clk),
		clock:   clk,
	}
	f.svc = NewServiceWithStores(zap.NewNop(), f.primary, f.blobs, f.journal, node, clk)
	return f
}

func (f *serviceFixture) archiveOnly(t *testing.T, record recorddomain.Record) {
	t.Helper()
	data, err := recorddomain.MarshalArchive(&record)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(context.Background(), recorddomain.ArchivePath(record.ID), data))
}

func TestGetServesHotTierFirst(t *testing.T) {
	f := newServiceFixture(t)
	hot := recorddomain.Record{
		ID: "rec-1", Timestamp: f.clock.Now(),
		Payload: datatypes.JSONMap{"amount_cents": float64(200)},
	}
	require.NoError(t, f.primary.Put(context.Background(), &hot))
	// A stale cold copy must never shadow the hot record.
	f.archiveOnly(t, recorddomain.Record{ID: "rec-1", Timestamp: f.clock.Now().Add(-time.Hour)})

	lookup, err := f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)

	assert.Equal(t, recorddomain.TierHot, lookup.Tier)
	assert.Equal(t, hot.Payload, lookup.Record.Payload)
}

func TestGetFallsBackToColdTier(t *testing.T) {
	f := newServiceFixture(t)
	f.archiveOnly(t, recorddomain.Record{
		ID: "rec-1", Timestamp: f.clock.Now().Add(-90 * 24 * time.Hour),
		Payload: datatypes.JSONMap{"sku": "api"},
	})

	lookup, err := f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)

	assert.Equal(t, recorddomain.TierCold, lookup.Tier)
	assert.Equal(t, "rec-1", lookup.Record.ID)
	assert.Equal(t, datatypes.JSONMap{"sku": "api"}, lookup.Record.Payload)
}

func TestGetColdHitIsCached(t *testing.T) {
	f := newServiceFixture(t)
	f.archiveOnly(t, recorddomain.Record{
		ID: "rec-1", Timestamp: f.clock.Now().Add(-90 * 24 * time.Hour),
		Payload: datatypes.JSONMap{"sku": "api"},
	})

	lookup, err := f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Equal(t, recorddomain.TierCold, lookup.Tier)

	// Second read is served from the cold-lookup cache, no blob fetch.
	f.blobs.GetErr = func(path string) error {
		t.Fatalf("unexpected blob fetch for %s", path)
		return nil
	}
	lookup, err = f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, recorddomain.TierCold, lookup.Tier)
}

func TestGetMissInBothTiers(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, recorddomain.ErrRecordNotFound)
}

func TestGetHotTierOutageIsNotAMiss(t *testing.T) {
	f := newServiceFixture(t)
	f.primary.getErr = func(id string) error {
		return errors.New("connection refused")
	}
	f.archiveOnly(t, recorddomain.Record{ID: "rec-1", Timestamp: f.clock.Now()})

	// The cold copy exists, but a hot-tier outage must surface as
	// unavailability, never silently fall through.
	_, err := f.svc.Get(context.Background(), "rec-1")
	assert.ErrorIs(t, err, recorddomain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, recorddomain.ErrRecordNotFound)
}

func TestGetColdTierOutage(t *testing.T) {
	f := newServiceFixture(t)
	f.blobs.GetErr = func(path string) error {
		return errors.New("blob backend down")
	}

	_, err := f.svc.Get(context.Background(), "rec-1")
	assert.ErrorIs(t, err, recorddomain.ErrStoreUnavailable)
}

func TestGetRejectsMalformedID(t *testing.T) {
	f := newServiceFixture(t)

	for _, id := range []string{"", "  ", "a/b", `a\b`} {
		_, err := f.svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, recorddomain.ErrInvalidRecordID, "id %q", id)
	}
}

func TestPutGeneratesIDWhenAbsent(t *testing.T) {
	f := newServiceFixture(t)

	record, err := f.svc.Put(context.Background(), recorddomain.PutRequest{
		Payload: map[string]any{"sku": "api"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, f.clock.Now(), record.Timestamp)
	assert.True(t, func() bool { _, err := f.primary.Get(context.Background(), record.ID); return err == nil }())
}

func TestPutOverwritesExistingID(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Put(context.Background(), recorddomain.PutRequest{
		ID:      "rec-1",
		Payload: map[string]any{"v": float64(1)},
	})
	require.NoError(t, err)

	_, err = f.svc.Put(context.Background(), recorddomain.PutRequest{
		ID:      "rec-1",
		Payload: map[string]any{"v": float64(2)},
	})
	require.NoError(t, err)

	stored, err := f.primary.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.JSONMap{"v": float64(2)}, stored.Payload)
}

func TestRestoreRehydratesAndRetainsArchiveCopy(t *testing.T) {
	f := newServiceFixture(t)
	f.archiveOnly(t, recorddomain.Record{
		ID: "rec-1", Timestamp: f.clock.Now().Add(-90 * 24 * time.Hour),
		Payload: datatypes.JSONMap{"sku": "api"},
	})

	record, err := f.svc.Restore(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", record.ID)

	// Hot again, and the archive object is untouched.
	lookup, err := f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, recorddomain.TierHot, lookup.Tier)

	exists, err := f.blobs.Exists(context.Background(), recorddomain.ArchivePath("rec-1"))
	require.NoError(t, err)
	assert.True(t, exists)

	entry, ok := f.journal.Get("rec-1")
	require.True(t, ok)
	assert.Equal(t, tierstate.StateRestored, entry.State)
}

func TestRestoreIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	f.archiveOnly(t, recorddomain.Record{
		ID: "rec-1", Timestamp: f.clock.Now().Add(-time.Hour),
		Payload: datatypes.JSONMap{"sku": "api"},
	})

	first, err := f.svc.Restore(context.Background(), "rec-1")
	require.NoError(t, err)
	second, err := f.svc.Restore(context.Background(), "rec-1")
	require.NoError(t, err)

	assert.Equal(t, first.Payload, second.Payload)
}

func TestRestoreMissingArchive(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Restore(context.Background(), "nope")
	assert.ErrorIs(t, err, recorddomain.ErrRecordNotFound)
}

func TestRestorePrimaryWriteFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.archiveOnly(t, recorddomain.Record{ID: "rec-1", Timestamp: f.clock.Now()})
	f.primary.putErr = func(id string) error {
		return errors.New("hot tier down")
	}

	_, err := f.svc.Restore(context.Background(), "rec-1")
	assert.ErrorIs(t, err, recorddomain.ErrStoreUnavailable)
}

func TestGetServesLatestContentAfterOverwriteAndReArchive(t *testing.T) {
	f := newServiceFixture(t)
	staleTS := f.clock.Now().Add(-90 * 24 * time.Hour)
	f.archiveOnly(t, recorddomain.Record{
		ID: "rec-1", Timestamp: staleTS,
		Payload: datatypes.JSONMap{"version": float64(1)},
	})

	// Prime the cold-lookup cache with the original content.
	lookup, err := f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Equal(t, recorddomain.TierCold, lookup.Tier)
	require.Equal(t, float64(1), lookup.Record.Payload["version"])

	// Restore, overwrite keeping the old timestamp, then let the next
	// migration land: the archive now holds version 2 and the hot copy is
	// gone again. The resolver must not serve the cached version 1.
	_, err = f.svc.Restore(context.Background(), "rec-1")
	require.NoError(t, err)
	_, err = f.svc.Put(context.Background(), recorddomain.PutRequest{
		ID:        "rec-1",
		Timestamp: staleTS,
		Payload:   map[string]any{"version": float64(2)},
	})
	require.NoError(t, err)

	updated, err := f.primary.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	f.archiveOnly(t, *updated)
	require.NoError(t, f.primary.Delete(context.Background(), "rec-1"))

	lookup, err = f.svc.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, recorddomain.TierCold, lookup.Tier)
	assert.Equal(t, float64(2), lookup.Record.Payload["version"])
}

func TestCreateRejectsExistingID(t *testing.T) {
	f := newServiceFixture(t)

	first, err := f.svc.Create(context.Background(), recorddomain.PutRequest{
		ID: "rec-1", Payload: map[string]any{"sku": "api"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", first.ID)

	_, err = f.svc.Create(context.Background(), recorddomain.PutRequest{
		ID: "rec-1", Payload: map[string]any{"sku": "storage"},
	})
	assert.ErrorIs(t, err, recorddomain.ErrRecordExists)
}

func TestCreateGeneratesIDWhenAbsent(t *testing.T) {
	f := newServiceFixture(t)

	record, err := f.svc.Create(context.Background(), recorddomain.PutRequest{
		Payload: map[string]any{"sku": "api"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.True(t, f.primary.has(record.ID))
}

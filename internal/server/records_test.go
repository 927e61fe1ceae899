package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/coldline/internal/archiver"
	"github.com/smallbiznis/coldline/internal/archiver/lock"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/clock"
	"github.com/smallbiznis/coldline/internal/config"
	"github.com/smallbiznis/coldline/internal/config/policy"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	recordservice "github.com/smallbiznis/coldline/internal/record/service"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// memPrimary is a minimal in-memory hot tier for handler tests.
type memPrimary struct {
	mu      sync.Mutex
	records map[string]recorddomain.Record
}

func newMemPrimary() *memPrimary {
	return &memPrimary{records: make(map[string]recorddomain.Record)}
}

func (p *memPrimary) Get(ctx context.Context, id string) (*recorddomain.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
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
	p.records[record.ID] = *record
	return nil
}

func (p *memPrimary) Insert(ctx context.Context, record *recorddomain.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
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

type serverFixture struct {
	server  *Server
	primary *memPrimary
	blobs   *blobstore.Memory
	journal *tierstate.Journal
	clock   *clock.FakeClock
	lock    lock.CycleLock
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &serverFixture{
		primary: newMemPrimary(),
		blobs:   blobstore.NewMemory(),
		journal: tierstate.NewJournal(clk),
		clock:   clk,
		lock:    lock.NewLocal(),
	}

	svc := recordservice.NewServiceWithStores(zap.NewNop(), f.primary, f.blobs, f.journal, node, clk)

	engine, err := archiver.New(archiver.Params{
		Log:     zap.NewNop(),
		Primary: f.primary,
		Blobs:   f.blobs,
		Journal: f.journal,
		Clock:   clk,
		Policy: policy.NewStaticHolder(policy.ArchivePolicy{
			Cutoff:  30 * 24 * time.Hour,
			Workers: 2,
		}),
		Lock: f.lock,
	})
	require.NoError(t, err)

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())

	f.server = NewServer(ServerParams{
		Gin:     r,
		Cfg:     config.Config{Environment: "test"},
		Log:     zap.NewNop(),
		Records: svc,
		Journal: f.journal,
		Archive: engine,
	})
	return f
}

func (f *serverFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.server.Engine().ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Type
}

func TestPutThenGetRecord(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPut, "/v1/records/rec-1", gin.H{
		"timestamp": "2026-02-01T08:00:00Z",
		"payload":   gin.H{"amount_cents": 1250},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/records/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tier string `json:"tier"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hot", resp.Tier)
	assert.Equal(t, "rec-1", resp.Data.ID)
}

func TestCreateRecordGeneratesID(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/v1/records", gin.H{
		"payload": gin.H{"sku": "api"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)
}

func TestCreateRecordWithExistingIDIs409(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPost, "/v1/records", gin.H{
		"id":      "rec-1",
		"payload": gin.H{"sku": "api"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/records", gin.H{
		"id":      "rec-1",
		"payload": gin.H{"sku": "storage"},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "record_exists", errorType(t, w))
}

func TestGetMissingRecordIs404(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/v1/records/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "record_not_found", errorType(t, w))
}

func TestPutRejectsMalformedTimestamp(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodPut, "/v1/records/rec-1", gin.H{
		"timestamp": "yesterday",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_timestamp", errorType(t, w))
}

func TestGetServesColdTierAndRestoreRehydrates(t *testing.T) {
	f := newServerFixture(t)

	archived := recorddomain.Record{
		ID:        "rec-1",
		Timestamp: f.clock.Now().Add(-90 * 24 * time.Hour),
		Payload:   datatypes.JSONMap{"sku": "api"},
	}
	data, err := recorddomain.MarshalArchive(&archived)
	require.NoError(t, err)
	require.NoError(t, f.blobs.Put(context.Background(), recorddomain.ArchivePath("rec-1"), data))

	w := f.do(t, http.MethodGet, "/v1/records/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tier string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "cold", resp.Tier)

	w = f.do(t, http.MethodPost, "/v1/records/rec-1/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/records/rec-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "hot", resp.Tier)
}

func TestRunArchiverCycleEndpoint(t *testing.T) {
	f := newServerFixture(t)

	stale := recorddomain.Record{
		ID:        "old-1",
		Timestamp: f.clock.Now().Add(-90 * 24 * time.Hour),
		Payload:   datatypes.JSONMap{},
	}
	require.NoError(t, f.primary.Put(context.Background(), &stale))

	w := f.do(t, http.MethodPost, "/admin/archiver/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Archived int `json:"archived"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Archived)

	// The journal reflects the migration.
	w = f.do(t, http.MethodGet, "/admin/archiver/state/old-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		Data struct {
			State string `json:"state"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "ARCHIVED", state.Data.State)
}

func TestRecordLifecycleEndToEnd(t *testing.T) {
	f := newServerFixture(t)

	stale := recorddomain.Record{
		ID:        "B-100",
		Timestamp: f.clock.Now().Add(-120 * 24 * time.Hour),
		Payload:   datatypes.JSONMap{"amount_cents": float64(990)},
	}
	require.NoError(t, f.primary.Put(context.Background(), &stale))

	// Migrate, read from cold, restore, read from hot. Payload must be
	// byte-for-byte stable across the whole journey.
	w := f.do(t, http.MethodPost, "/admin/archiver/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var lookup struct {
		Tier string `json:"tier"`
		Data struct {
			Payload map[string]any `json:"payload"`
		} `json:"data"`
	}
	w = f.do(t, http.MethodGet, "/v1/records/B-100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.Equal(t, "cold", lookup.Tier)
	assert.Equal(t, float64(990), lookup.Data.Payload["amount_cents"])

	w = f.do(t, http.MethodPost, "/v1/records/B-100/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodGet, "/v1/records/B-100", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lookup))
	assert.Equal(t, "hot", lookup.Tier)
	assert.Equal(t, float64(990), lookup.Data.Payload["amount_cents"])

	// The archive copy survives the restore.
	exists, err := f.blobs.Exists(context.Background(), recorddomain.ArchivePath("B-100"))
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunArchiverCycleWhileLockedIs409(t *testing.T) {
	f := newServerFixture(t)

	release, acquired, err := f.lock.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	defer release(context.Background())

	w := f.do(t, http.MethodPost, "/admin/archiver/run", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "cycle_in_progress", errorType(t, w))
}

func TestArchiveStateUnknownRecordIs404(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(t, http.MethodGet, "/admin/archiver/state/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

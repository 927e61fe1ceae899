package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coldline/internal/blobstore"
	"github.com/smallbiznis/coldline/internal/cache"
	"github.com/smallbiznis/coldline/internal/clock"
	obsmetrics "github.com/smallbiznis/coldline/internal/observability/metrics"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/internal/tierstate"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type ServiceParam struct {
	fx.In

	Primary recorddomain.PrimaryStore
	Log     *zap.Logger
	GenID   *snowflake.Node
	Blobs   blobstore.Store
	Journal *tierstate.Journal
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log *zap.Logger

	primary   recorddomain.PrimaryStore
	blobs     blobstore.Store
	journal   *tierstate.Journal
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *obsmetrics.Metrics
	coldCache *cache.ColdLookup
}

func NewService(p ServiceParam) recorddomain.Service {
	return &Service{
		log:       p.Log.Named("record.service"),
		primary:   p.Primary,
		blobs:     p.Blobs,
		journal:   p.Journal,
		genID:     p.GenID,
		clock:     p.Clock,
		metrics:   p.Metrics,
		coldCache: cache.NewColdLookup(0),
	}
}

// NewServiceWithStores wires the service against explicit tier adapters.
// Tests use it with in-memory fakes for both tiers.
func NewServiceWithStores(
	log *zap.Logger,
	primary recorddomain.PrimaryStore,
	blobs blobstore.Store,
	journal *tierstate.Journal,
	genID *snowflake.Node,
	clk clock.Clock,
) *Service {
	return &Service{
		log:       log.Named("record.service"),
		primary:   primary,
		blobs:     blobs,
		journal:   journal,
		genID:     genID,
		clock:     clk,
		coldCache: cache.NewColdLookup(0),
	}
}

// newRecord normalizes a write request: generated id when absent, clock
// timestamp when zero, never-nil payload.
func (s *Service) newRecord(req recorddomain.PutRequest) (*recorddomain.Record, error) {
	id := req.ID
	if id == "" {
		id = s.genID.Generate().String()
	}
	if !recorddomain.ValidID(id) {
		return nil, recorddomain.ErrInvalidRecordID
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}

	payload := datatypes.JSONMap(req.Payload)
	if payload == nil {
		payload = datatypes.JSONMap{}
	}

	return &recorddomain.Record{
		ID:        id,
		Timestamp: timestamp.UTC(),
		Payload:   payload,
	}, nil
}

// Put writes a record into the hot tier. Insert-or-overwrite by id; an
// empty id gets a generated one.
func (s *Service) Put(ctx context.Context, req recorddomain.PutRequest) (*recorddomain.Record, error) {
	record, err := s.newRecord(req)
	if err != nil {
		return nil, err
	}
	if err := s.primary.Put(ctx, record); err != nil {
		return nil, wrapUnavailable(err)
	}
	// A cached cold copy of this id is now superseded.
	s.coldCache.Delete(record.ID)
	s.metrics.RecordWrite(ctx)
	return record, nil
}

// Create writes a record that must not already exist in the hot tier. A
// caller-supplied id that is already resident is rejected with
// ErrRecordExists.
func (s *Service) Create(ctx context.Context, req recorddomain.PutRequest) (*recorddomain.Record, error) {
	record, err := s.newRecord(req)
	if err != nil {
		return nil, err
	}
	if err := s.primary.Insert(ctx, record); err != nil {
		if errors.Is(err, recorddomain.ErrRecordExists) {
			return nil, recorddomain.ErrRecordExists
		}
		return nil, wrapUnavailable(err)
	}
	s.coldCache.Delete(record.ID)
	s.metrics.RecordWrite(ctx)
	return record, nil
}

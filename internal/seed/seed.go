package seed

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/coldline/internal/clock"
	"github.com/smallbiznis/coldline/internal/config"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Module seeds sample billing records in development so the resolver and a
// first migration cycle have something to chew on. No-op elsewhere.
var Module = fx.Module("seed",
	fx.Invoke(EnsureDevRecords),
)

func EnsureDevRecords(cfg config.Config, db *gorm.DB, clk clock.Clock, log *zap.Logger) error {
	if cfg.Environment != "development" {
		return nil
	}
	if db == nil {
		return errors.New("seed database handle is required")
	}

	now := clk.Now()
	records := []recorddomain.Record{
		{
			ID:        "seed-current",
			Timestamp: now.Add(-24 * time.Hour),
			Payload:   datatypes.JSONMap{"amount_cents": 1250, "currency": "USD", "sku": "api-calls"},
		},
		{
			ID:        "seed-aging",
			Timestamp: now.Add(-60 * 24 * time.Hour),
			Payload:   datatypes.JSONMap{"amount_cents": 990, "currency": "USD", "sku": "storage-gb"},
		},
		{
			ID:        "seed-stale",
			Timestamp: now.Add(-120 * 24 * time.Hour),
			Payload:   datatypes.JSONMap{"amount_cents": 480, "currency": "USD", "sku": "egress-gb"},
		},
	}

	ctx := context.Background()
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&records).Error
	if err != nil {
		return err
	}

	log.Info("seeded development records", zap.Int("count", len(records)))
	return nil
}

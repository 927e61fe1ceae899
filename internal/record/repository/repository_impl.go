package repository

import (
	"context"
	"errors"
	"time"

	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"github.com/smallbiznis/coldline/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type primaryStore struct {
	db *gorm.DB
}

// ProvidePrimaryStore returns the gorm-backed hot-tier adapter.
func ProvidePrimaryStore(db *gorm.DB) recorddomain.PrimaryStore {
	return &primaryStore{db: db}
}

func (r *primaryStore) Get(ctx context.Context, id string) (*recorddomain.Record, error) {
	var record recorddomain.Record
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, recorddomain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *primaryStore) Put(ctx context.Context, record *recorddomain.Record) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(record).Error
}

func (r *primaryStore) Insert(ctx context.Context, record *recorddomain.Record) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return recorddomain.ErrRecordExists
		}
		return err
	}
	return nil
}

func (r *primaryStore) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&recorddomain.Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return recorddomain.ErrNotFound
	}
	return nil
}

func (r *primaryStore) QueryOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]recorddomain.Record, error) {
	if limit <= 0 {
		limit = 500
	}
	var records []recorddomain.Record
	err := r.db.WithContext(ctx).
		Where("timestamp < ?", cutoff).
		Order("timestamp ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Package domain contains the billing record model shared by both storage
// tiers.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Record is the unit of storage. Where it currently lives (hot or cold tier)
// is never stored on the record itself; the resolver derives it at read time.
type Record struct {
	ID        string            `gorm:"primaryKey;type:text" json:"id"`
	Timestamp time.Time         `gorm:"not null;index" json:"timestamp"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"payload"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "billing_records" }

// Tier identifies which storage tier served a record.
type Tier string

const (
	TierHot  Tier = "hot"
	TierCold Tier = "cold"
)

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SupplierStatus string

const (
	SupplierStatusActive   SupplierStatus = "ACTIVE"
	SupplierStatusInactive SupplierStatus = "INACTIVE"
)

// Supplier is a party that delivers product into the vault. Code is the
// human-facing handle used on delivery notes and ingest payloads.
type Supplier struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	Code      string            `gorm:"uniqueIndex;not null" json:"code"`
	Name      string            `gorm:"not null" json:"name"`
	Email     string            `gorm:"not null" json:"email"`
	Phone     string            `gorm:"column:phone" json:"phone,omitempty"`
	Region    string            `gorm:"column:region" json:"region,omitempty"`
	Status    SupplierStatus    `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Supplier) TableName() string {
	return "suppliers"
}

func (s Supplier) IsActive() bool {
	return s.Status == SupplierStatusActive
}

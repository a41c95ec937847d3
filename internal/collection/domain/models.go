package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Collection is one recorded delivery. UnitRate and Amount are denormalized
// from the rate resolved at record time so later rate changes never
// rewrite history. Receipt is the external handle printed on delivery
// notes.
type Collection struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	Receipt        string          `gorm:"uniqueIndex;not null" json:"receipt"`
	SupplierID     snowflake.ID    `gorm:"column:supplier_id;not null;index" json:"supplier_id"`
	ProductID      snowflake.ID    `gorm:"column:product_id;not null;index" json:"product_id"`
	RateID         snowflake.ID    `gorm:"column:rate_id;not null" json:"rate_id"`
	Unit           string          `gorm:"type:text;not null" json:"unit"`
	Quantity       decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"quantity"`
	UnitRate       decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"unit_rate"`
	Amount         decimal.Decimal `gorm:"type:decimal(16,4);not null" json:"amount"`
	CollectedAt    time.Time       `gorm:"not null;index" json:"collected_at"`
	Notes          string          `gorm:"type:text" json:"notes,omitempty"`
	IdempotencyKey *string         `gorm:"type:text;uniqueIndex" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Collection) TableName() string { return "collections" }

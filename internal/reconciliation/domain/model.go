package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// SupplierBalance is the reconciliation snapshot for one supplier,
// rebuilt from the collections and payments tables. OldestUnsettledAt
// is the collection date of the oldest delivery not yet covered by
// payments applied oldest-first.
type SupplierBalance struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	SupplierID        snowflake.ID    `json:"supplier_id" gorm:"not null;uniqueIndex"`
	CollectedTotal    decimal.Decimal `json:"collected_total" gorm:"type:decimal(16,4);not null"`
	PaidTotal         decimal.Decimal `json:"paid_total" gorm:"type:decimal(16,4);not null"`
	Outstanding       decimal.Decimal `json:"outstanding" gorm:"type:decimal(16,4);not null"`
	LastCollectionAt  *time.Time      `json:"last_collection_at"`
	LastPaymentAt     *time.Time      `json:"last_payment_at"`
	OldestUnsettledAt *time.Time      `json:"oldest_unsettled_at"`
	ComputedAt        time.Time       `json:"computed_at" gorm:"not null"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (SupplierBalance) TableName() string { return "supplier_balances" }

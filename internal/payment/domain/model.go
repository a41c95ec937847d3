package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
)

// Payment is money paid out to a supplier against their delivered
// collections. Payments are append-only operator entries.
type Payment struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	SupplierID snowflake.ID    `json:"supplier_id" gorm:"not null;index"`
	Amount     decimal.Decimal `json:"amount" gorm:"type:decimal(16,4);not null"`
	Method     PaymentMethod   `json:"method" gorm:"type:text;not null"`
	Reference  string          `json:"reference" gorm:"type:text"`
	PaidAt     time.Time       `json:"paid_at" gorm:"not null;index"`
	Notes      string          `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

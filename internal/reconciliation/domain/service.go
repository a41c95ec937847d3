package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceResponse is a snapshot annotated with the supplier identity
// and the aging/risk classification from the reconciliation policy.
type BalanceResponse struct {
	SupplierID        string          `json:"supplier_id"`
	SupplierCode      string          `json:"supplier_code"`
	SupplierName      string          `json:"supplier_name"`
	CollectedTotal    decimal.Decimal `json:"collected_total"`
	PaidTotal         decimal.Decimal `json:"paid_total"`
	Outstanding       decimal.Decimal `json:"outstanding"`
	LastCollectionAt  *time.Time      `json:"last_collection_at,omitempty"`
	LastPaymentAt     *time.Time      `json:"last_payment_at,omitempty"`
	OldestUnsettledAt *time.Time      `json:"oldest_unsettled_at,omitempty"`
	ComputedAt        time.Time       `json:"computed_at"`
	AgingBucket       string          `json:"aging_bucket,omitempty"`
	RiskLevel         string          `json:"risk_level,omitempty"`
}

type Service interface {
	// SupplierBalance reads the supplier's snapshot, rebuilding it first
	// when it is missing or stale.
	SupplierBalance(ctx context.Context, supplierID string) (*BalanceResponse, error)

	// Overview lists every supplier whose snapshot carries a non-zero
	// outstanding amount, largest debt first.
	Overview(ctx context.Context) ([]BalanceResponse, error)

	// Rebuild recomputes one supplier's snapshot from the collections
	// and payments tables.
	Rebuild(ctx context.Context, supplierID string) (*SupplierBalance, error)
}

var (
	ErrSupplierNotFound = errors.New("supplier_not_found")
	ErrInvalidID        = errors.New("invalid_id")
)

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type RecordCollectionRequest struct {
	SupplierID     string          `json:"supplier_id"`
	ProductID      string          `json:"product_id"`
	Unit           string          `json:"unit"`
	Quantity       decimal.Decimal `json:"quantity"`
	CollectedAt    *time.Time      `json:"collected_at"`
	IdempotencyKey string          `json:"idempotency_key"`
	Notes          string          `json:"notes"`
}

type GetCollectionRequest struct {
	ID string
}

type GetCollectionByReceiptRequest struct {
	Receipt string
}

type ListCollectionRequest struct {
	PageToken     string
	PageSize      int32
	SupplierID    string
	ProductID     string
	CollectedFrom *time.Time
	CollectedTo   *time.Time
}

type ListCollectionFilter struct {
	SupplierID    snowflake.ID
	ProductID     snowflake.ID
	CollectedFrom *time.Time
	CollectedTo   *time.Time
}

type ListCollectionResponse struct {
	pagination.PageInfo
	Collections []Collection `json:"collections"`
}

type Service interface {
	Record(context.Context, RecordCollectionRequest) (Collection, error)
	GetByID(context.Context, GetCollectionRequest) (Collection, error)
	GetByReceipt(context.Context, GetCollectionByReceiptRequest) (Collection, error)
	List(context.Context, ListCollectionRequest) (ListCollectionResponse, error)
}

var (
	ErrSupplierNotFound = errors.New("supplier_not_found")
	ErrSupplierInactive = errors.New("supplier_inactive")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnit      = errors.New("invalid_unit")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
)

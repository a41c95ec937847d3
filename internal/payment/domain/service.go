package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type RecordPaymentRequest struct {
	SupplierID string          `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	PaidAt     *time.Time      `json:"paid_at"`
	Notes      string          `json:"notes"`
}

type GetPaymentRequest struct {
	ID string
}

type ListPaymentRequest struct {
	PageToken  string
	PageSize   int32
	SupplierID string
	PaidFrom   *time.Time
	PaidTo     *time.Time
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type ReceiptRequest struct {
	ID string
}

type Service interface {
	Record(context.Context, RecordPaymentRequest) (Payment, error)
	GetByID(context.Context, GetPaymentRequest) (Payment, error)
	List(context.Context, ListPaymentRequest) (ListPaymentResponse, error)

	// Receipt renders the payment as a PDF document, including the
	// supplier's outstanding balance after this payment.
	Receipt(context.Context, ReceiptRequest) (io.Reader, error)
}

var (
	ErrSupplierNotFound = errors.New("supplier_not_found")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidMethod    = errors.New("invalid_method")
	ErrInvalidID        = errors.New("invalid_id")
	ErrNotFound         = errors.New("not_found")
)

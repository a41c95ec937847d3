package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ResolveCurrentRateRequest asks which rate applies to one unit of the
// product on a given day. A nil On means today.
type ResolveCurrentRateRequest struct {
	ProductID string
	Unit      string
	On        *time.Time
}

type AddRateRequest struct {
	ProductID     string
	Rate          decimal.Decimal
	Unit          string
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Active        *bool
	Notes         string
}

type ListRatesRequest struct {
	ProductID  string
	ActiveOnly bool
}

type DeactivateRateRequest struct {
	ID string
}

type Service interface {
	ResolveCurrent(context.Context, ResolveCurrentRateRequest) (ProductRate, error)
	Add(context.Context, AddRateRequest) (ProductRate, error)
	ListForProduct(context.Context, ListRatesRequest) ([]ProductRate, error)
	Deactivate(context.Context, DeactivateRateRequest) (ProductRate, error)
}

var (
	ErrProductNotFound       = errors.New("product_not_found")
	ErrNoCurrentRate         = errors.New("no_current_rate")
	ErrInvalidRate           = errors.New("invalid_rate")
	ErrInvalidUnit           = errors.New("invalid_unit")
	ErrUnitNotAllowed        = errors.New("unit_not_allowed")
	ErrInvalidEffectiveRange = errors.New("invalid_effective_range")
	ErrRateOverlap           = errors.New("rate_overlap")
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("not_found")
)

// PersistenceError marks a storage failure distinct from the domain
// errors above. The cause stays reachable through errors.Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("product_rate %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

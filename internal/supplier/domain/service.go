package domain

import (
	"context"
	"errors"
	"time"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type CreateSupplierRequest struct {
	Code   string
	Name   string
	Email  string
	Phone  string
	Region string
}

type GetSupplierRequest struct {
	ID string
}

type GetSupplierByCodeRequest struct {
	Code string
}

type ListSupplierRequest struct {
	PageToken   string
	PageSize    int32
	Name        string
	Region      string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListSupplierFilter struct {
	Name        string
	Region      string
	Status      SupplierStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListSupplierResponse struct {
	pagination.PageInfo
	Suppliers []Supplier `json:"suppliers"`
}

// UpdateSupplierRequest carries partial updates; nil pointers leave the
// field untouched.
type UpdateSupplierRequest struct {
	ID     string
	Name   *string
	Email  *string
	Phone  *string
	Region *string
	Status *string
}

type Service interface {
	Create(context.Context, CreateSupplierRequest) (Supplier, error)
	GetByID(context.Context, GetSupplierRequest) (Supplier, error)
	GetByCode(context.Context, GetSupplierByCodeRequest) (Supplier, error)
	List(context.Context, ListSupplierRequest) (ListSupplierResponse, error)
	Update(context.Context, UpdateSupplierRequest) (Supplier, error)
}

var (
	ErrInvalidName   = errors.New("invalid_name")
	ErrInvalidEmail  = errors.New("invalid_email")
	ErrInvalidCode   = errors.New("invalid_code")
	ErrInvalidStatus = errors.New("invalid_status")
	ErrInvalidID     = errors.New("invalid_id")
	ErrCodeTaken     = errors.New("code_taken")
	ErrNotFound      = errors.New("not_found")
)

package domain

import (
	"context"
	"errors"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type CreateProductRequest struct {
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Units       []string       `json:"units"`
	Metadata    map[string]any `json:"metadata"`
}

type GetProductRequest struct {
	ID string
}

type GetProductByCodeRequest struct {
	Code string
}

type ListProductRequest struct {
	PageToken string
	PageSize  int32
	Name      string
	Active    *bool
}

type ListProductFilter struct {
	Name   string
	Active *bool
}

type ListProductResponse struct {
	pagination.PageInfo
	Products []Product `json:"products"`
}

// UpdateProductRequest carries partial updates; nil leaves a field alone.
// A non-nil Units replaces the whole allowed list.
type UpdateProductRequest struct {
	ID          string
	Name        *string
	Description *string
	Units       []string
	Active      *bool
}

type Service interface {
	Create(context.Context, CreateProductRequest) (Product, error)
	GetByID(context.Context, GetProductRequest) (Product, error)
	GetByCode(context.Context, GetProductByCodeRequest) (Product, error)
	List(context.Context, ListProductRequest) (ListProductResponse, error)
	Update(context.Context, UpdateProductRequest) (Product, error)
}

var (
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidCode  = errors.New("invalid_code")
	ErrInvalidUnits = errors.New("invalid_units")
	ErrUnitInUse    = errors.New("unit_in_use")
	ErrInvalidID    = errors.New("invalid_id")
	ErrCodeTaken    = errors.New("code_taken")
	ErrNotFound     = errors.New("not_found")
)

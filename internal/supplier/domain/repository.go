package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, supplier *Supplier) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Supplier, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Supplier, error)
	List(ctx context.Context, db *gorm.DB, filter ListSupplierFilter, page pagination.Pagination) ([]*Supplier, error)
	Update(ctx context.Context, db *gorm.DB, supplier *Supplier) error
}

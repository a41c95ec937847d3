package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListProductFilter, page pagination.Pagination) ([]*Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	// CountActiveRatesForUnit counts active rate rows referencing the unit,
	// consulted before a unit is removed from the product.
	CountActiveRatesForUnit(ctx context.Context, db *gorm.DB, productID snowflake.ID, unit string) (int64, error)
}

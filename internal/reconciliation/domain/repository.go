package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the snapshot or replaces the existing one for the
	// same supplier.
	Upsert(ctx context.Context, db *gorm.DB, balance *SupplierBalance) error
	FindBySupplier(ctx context.Context, db *gorm.DB, supplierID snowflake.ID) (*SupplierBalance, error)
}

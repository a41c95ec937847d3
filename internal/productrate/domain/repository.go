package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rate *ProductRate) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ProductRate, error)
	// FindByProduct returns the product's rates ordered by effective_from
	// desc, id desc.
	FindByProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, activeOnly bool) ([]*ProductRate, error)
	// FindCurrent returns every active rate whose interval contains day,
	// newest effective_from first. More than one row means the non-overlap
	// invariant was violated upstream; the caller decides what to do.
	FindCurrent(ctx context.Context, db *gorm.DB, productID snowflake.ID, unit string, day time.Time) ([]*ProductRate, error)
	// FindOverlapping returns active rates intersecting [from, to] for the
	// product and unit. Inside a transaction the matched rows are locked on
	// dialects that support it.
	FindOverlapping(ctx context.Context, tx *gorm.DB, productID snowflake.ID, unit string, from time.Time, to *time.Time) ([]*ProductRate, error)
	// LockProductRates serializes rate writes for one product inside tx.
	// Locking only the existing rate rows cannot order two first-ever
	// inserts, so writers queue on the product row instead.
	LockProductRates(ctx context.Context, tx *gorm.DB, productID snowflake.ID) error
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, updatedAt time.Time) error
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Repository interface {
	// Insert writes the row. It reports false without error when an
	// idempotency-key conflict suppressed the write.
	Insert(ctx context.Context, db *gorm.DB, collection *Collection) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Collection, error)
	FindByReceipt(ctx context.Context, db *gorm.DB, receipt string) (*Collection, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Collection, error)
	List(ctx context.Context, db *gorm.DB, filter ListCollectionFilter, page pagination.Pagination) ([]*Collection, error)
}

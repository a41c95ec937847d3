package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trackvault/trackvault/internal/collection/domain"
	"github.com/trackvault/trackvault/pkg/db/option"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

const collectionColumns = `id, receipt, supplier_id, product_id, rate_id, unit, quantity, unit_rate, amount, collected_at, notes, idempotency_key, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, collection *domain.Collection) (bool, error) {
	if strings.EqualFold(db.Dialector.Name(), "sqlite") {
		return r.insertSQLite(ctx, db, collection)
	}

	stmt := db.WithContext(ctx)
	if collection.IdempotencyKey != nil {
		stmt = stmt.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		})
	}
	result := stmt.Create(collection)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) insertSQLite(ctx context.Context, db *gorm.DB, collection *domain.Collection) (bool, error) {
	query := `INSERT INTO collections (id, receipt, supplier_id, product_id, rate_id, unit, quantity, unit_rate, amount, collected_at, notes, idempotency_key, created_at, updated_at)
	 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if collection.IdempotencyKey != nil {
		query += ` ON CONFLICT (idempotency_key) DO NOTHING`
	}
	result := db.WithContext(ctx).Exec(
		query,
		collection.ID,
		collection.Receipt,
		collection.SupplierID,
		collection.ProductID,
		collection.RateID,
		collection.Unit,
		collection.Quantity,
		collection.UnitRate,
		collection.Amount,
		collection.CollectedAt,
		collection.Notes,
		collection.IdempotencyKey,
		collection.CreatedAt,
		collection.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Collection, error) {
	var collection domain.Collection
	err := db.WithContext(ctx).Raw(
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`,
		id,
	).Scan(&collection).Error
	if err != nil {
		return nil, err
	}
	if collection.ID == 0 {
		return nil, nil
	}
	return &collection, nil
}

func (r *repo) FindByReceipt(ctx context.Context, db *gorm.DB, receipt string) (*domain.Collection, error) {
	var collection domain.Collection
	err := db.WithContext(ctx).Raw(
		`SELECT `+collectionColumns+` FROM collections WHERE receipt = ?`,
		receipt,
	).Scan(&collection).Error
	if err != nil {
		return nil, err
	}
	if collection.ID == 0 {
		return nil, nil
	}
	return &collection, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Collection, error) {
	var collection domain.Collection
	err := db.WithContext(ctx).Raw(
		`SELECT `+collectionColumns+` FROM collections WHERE idempotency_key = ?`,
		key,
	).Scan(&collection).Error
	if err != nil {
		return nil, err
	}
	if collection.ID == 0 {
		return nil, nil
	}
	return &collection, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListCollectionFilter, page pagination.Pagination) ([]*domain.Collection, error) {
	var collections []*domain.Collection
	stmt := db.WithContext(ctx).
		Model(&domain.Collection{})
	if filter.SupplierID != 0 {
		stmt = stmt.Where("supplier_id = ?", filter.SupplierID)
	}
	if filter.ProductID != 0 {
		stmt = stmt.Where("product_id = ?", filter.ProductID)
	}
	if filter.CollectedFrom != nil {
		stmt = stmt.Where("collected_at >= ?", *filter.CollectedFrom)
	}
	if filter.CollectedTo != nil {
		stmt = stmt.Where("collected_at <= ?", *filter.CollectedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&collections).Error
	if err != nil {
		return nil, err
	}
	return collections, nil
}

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trackvault/trackvault/internal/reconciliation/domain"
)

const balanceColumns = `id, supplier_id, collected_total, paid_total, outstanding, last_collection_at, last_payment_at, oldest_unsettled_at, computed_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, balance *domain.SupplierBalance) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "supplier_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"collected_total",
			"paid_total",
			"outstanding",
			"last_collection_at",
			"last_payment_at",
			"oldest_unsettled_at",
			"computed_at",
			"updated_at",
		}),
	}).Create(balance).Error
}

func (r *repo) FindBySupplier(ctx context.Context, db *gorm.DB, supplierID snowflake.ID) (*domain.SupplierBalance, error) {
	var balance domain.SupplierBalance
	err := db.WithContext(ctx).Raw(
		`SELECT `+balanceColumns+` FROM supplier_balances WHERE supplier_id = ?`,
		supplierID,
	).Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.ID == 0 {
		return nil, nil
	}
	return &balance, nil
}

package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/productrate/domain"
)

const rateColumns = `id, product_id, unit, rate, effective_from, effective_to, active, notes, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rate *domain.ProductRate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_rates (id, product_id, unit, rate, effective_from, effective_to, active, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.ProductID,
		rate.Unit,
		rate.Rate,
		rate.EffectiveFrom,
		rate.EffectiveTo,
		rate.Active,
		rate.Notes,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ProductRate, error) {
	var rate domain.ProductRate
	err := db.WithContext(ctx).Raw(
		`SELECT `+rateColumns+` FROM product_rates WHERE id = ?`,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repo) FindByProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, activeOnly bool) ([]*domain.ProductRate, error) {
	query := `SELECT ` + rateColumns + ` FROM product_rates WHERE product_id = ?`
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY effective_from DESC, id DESC`

	var rates []*domain.ProductRate
	err := db.WithContext(ctx).Raw(query, productID).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, productID snowflake.ID, unit string, day time.Time) ([]*domain.ProductRate, error) {
	var rates []*domain.ProductRate
	err := db.WithContext(ctx).Raw(
		`SELECT `+rateColumns+`
		 FROM product_rates
		 WHERE product_id = ? AND unit = ? AND active = true
		   AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to >= ?)
		 ORDER BY effective_from DESC, id DESC`,
		productID,
		unit,
		day,
		day,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) FindOverlapping(ctx context.Context, tx *gorm.DB, productID snowflake.ID, unit string, from time.Time, to *time.Time) ([]*domain.ProductRate, error) {
	query := `SELECT ` + rateColumns + `
	 FROM product_rates
	 WHERE product_id = ? AND unit = ? AND active = true
	   AND (effective_to IS NULL OR effective_to >= ?)`
	args := []any{productID, unit, from}
	if to != nil {
		query += ` AND effective_from <= ?`
		args = append(args, *to)
	}
	query += ` ORDER BY effective_from`
	if tx.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}

	var rates []*domain.ProductRate
	err := tx.WithContext(ctx).Raw(query, args...).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repo) LockProductRates(ctx context.Context, tx *gorm.DB, productID snowflake.ID) error {
	if tx.Dialector.Name() == "sqlite" {
		return nil
	}
	return tx.WithContext(ctx).Exec(
		`SELECT id FROM products WHERE id = ? FOR UPDATE`,
		productID,
	).Error
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE product_rates SET active = ?, updated_at = ? WHERE id = ?`,
		active,
		updatedAt,
		id,
	).Error
}

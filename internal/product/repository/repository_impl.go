package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/product/domain"
	"github.com/trackvault/trackvault/pkg/db/option"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (id, code, name, description, units, active, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Code,
		product.Name,
		product.Description,
		product.Units,
		product.Active,
		product.Metadata,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, units, active, metadata, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, units, active, metadata, created_at, updated_at
		 FROM products WHERE code = ?`,
		code,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListProductFilter, page pagination.Pagination) ([]*domain.Product, error) {
	var products []*domain.Product
	stmt := db.WithContext(ctx).
		Model(&domain.Product{})
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Active != nil {
		stmt = stmt.Where("active = ?", *filter.Active)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET name = ?, description = ?, units = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		product.Name,
		product.Description,
		product.Units,
		product.Active,
		product.UpdatedAt,
		product.ID,
	).Error
}

func (r *repo) CountActiveRatesForUnit(ctx context.Context, db *gorm.DB, productID snowflake.ID, unit string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT count(1) FROM product_rates WHERE product_id = ? AND unit = ? AND active = true`,
		productID,
		unit,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

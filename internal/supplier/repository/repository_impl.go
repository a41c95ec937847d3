package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/supplier/domain"
	"github.com/trackvault/trackvault/pkg/db/option"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, supplier *domain.Supplier) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO suppliers (id, code, name, email, phone, region, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		supplier.ID,
		supplier.Code,
		supplier.Name,
		supplier.Email,
		supplier.Phone,
		supplier.Region,
		supplier.Status,
		supplier.Metadata,
		supplier.CreatedAt,
		supplier.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, email, phone, region, status, metadata, created_at, updated_at
		 FROM suppliers WHERE id = ?`,
		id,
	).Scan(&supplier).Error
	if err != nil {
		return nil, err
	}
	if supplier.ID == 0 {
		return nil, nil
	}
	return &supplier, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, email, phone, region, status, metadata, created_at, updated_at
		 FROM suppliers WHERE code = ?`,
		code,
	).Scan(&supplier).Error
	if err != nil {
		return nil, err
	}
	if supplier.ID == 0 {
		return nil, nil
	}
	return &supplier, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListSupplierFilter, page pagination.Pagination) ([]*domain.Supplier, error) {
	var suppliers []*domain.Supplier
	stmt := db.WithContext(ctx).
		Model(&domain.Supplier{})
	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Region != "" {
		stmt = stmt.Where("region = ?", filter.Region)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *filter.CreatedTo)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&suppliers).Error
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, supplier *domain.Supplier) error {
	return db.WithContext(ctx).Exec(
		`UPDATE suppliers
		 SET name = ?, email = ?, phone = ?, region = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		supplier.Name,
		supplier.Email,
		supplier.Phone,
		supplier.Region,
		supplier.Status,
		supplier.UpdatedAt,
		supplier.ID,
	).Error
}

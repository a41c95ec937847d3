package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/product/domain"
	"github.com/trackvault/trackvault/pkg/db"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("product.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateProductRequest) (domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, domain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	} else if !slug.IsSlug(code) {
		return domain.Product{}, domain.ErrInvalidCode
	}

	units := normalizeUnits(req.Units)
	if len(units) == 0 {
		return domain.Product{}, domain.ErrInvalidUnits
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Product{}, err
	}
	if existing != nil {
		return domain.Product{}, domain.ErrCodeTaken
	}

	var description *string
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			description = &d
		}
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:          s.genID.Generate(),
		Code:        code,
		Name:        name,
		Description: description,
		Units:       datatypes.NewJSONSlice(units),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Metadata != nil {
		product.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, s.db, &product); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Product{}, domain.ErrCodeTaken
		}
		return domain.Product{}, err
	}

	s.log.Info("product created",
		zap.String("product_id", product.ID.String()),
		zap.String("code", product.Code),
		zap.Strings("units", units),
	)

	return product, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetProductRequest) (domain.Product, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) GetByCode(ctx context.Context, req domain.GetProductByCodeRequest) (domain.Product, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Product{}, domain.ErrInvalidCode
	}

	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListProductRequest) (domain.ListProductResponse, error) {
	filter := domain.ListProductFilter{
		Name:   strings.TrimSpace(req.Name),
		Active: req.Active,
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListProductResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(product *domain.Product) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        product.ID.String(),
			CreatedAt: product.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	products := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		products = append(products, *item)
	}

	resp := domain.ListProductResponse{Products: products}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateProductRequest) (domain.Product, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Product{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Product{}, err
	}
	if item == nil {
		return domain.Product{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Description != nil {
		if d := strings.TrimSpace(*req.Description); d != "" {
			item.Description = &d
		} else {
			item.Description = nil
		}
	}
	if req.Units != nil {
		units := normalizeUnits(req.Units)
		if len(units) == 0 {
			return domain.Product{}, domain.ErrInvalidUnits
		}
		for _, removed := range removedUnits(item.Units, units) {
			count, err := s.repo.CountActiveRatesForUnit(ctx, s.db, item.ID, removed)
			if err != nil {
				return domain.Product{}, err
			}
			if count > 0 {
				return domain.Product{}, domain.ErrUnitInUse
			}
		}
		item.Units = datatypes.NewJSONSlice(units)
	}
	if req.Active != nil {
		item.Active = *req.Active
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Product{}, err
	}

	return *item, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

// normalizeUnits lower-cases, trims and dedupes while keeping input order.
func normalizeUnits(units []string) []string {
	seen := make(map[string]struct{}, len(units))
	out := make([]string, 0, len(units))
	for _, unit := range units {
		unit = strings.ToLower(strings.TrimSpace(unit))
		if unit == "" {
			continue
		}
		if _, ok := seen[unit]; ok {
			continue
		}
		seen[unit] = struct{}{}
		out = append(out, unit)
	}
	return out
}

func removedUnits(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, unit := range after {
		keep[unit] = struct{}{}
	}
	var removed []string
	for _, unit := range before {
		if _, ok := keep[unit]; !ok {
			removed = append(removed, unit)
		}
	}
	return removed
}

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
	"github.com/trackvault/trackvault/internal/supplier/domain"
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
		log:   p.Log.Named("supplier.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateSupplierRequest) (domain.Supplier, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, domain.ErrInvalidName
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Supplier{}, domain.ErrInvalidEmail
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = slug.Make(name)
	} else if !slug.IsSlug(code) {
		return domain.Supplier{}, domain.ErrInvalidCode
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Supplier{}, err
	}
	if existing != nil {
		return domain.Supplier{}, domain.ErrCodeTaken
	}

	now := s.clock.Now()
	supplier := domain.Supplier{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		Email:     email,
		Phone:     strings.TrimSpace(req.Phone),
		Region:    strings.TrimSpace(req.Region),
		Status:    domain.SupplierStatusActive,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, &supplier); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Supplier{}, domain.ErrCodeTaken
		}
		return domain.Supplier{}, err
	}

	s.log.Info("supplier created",
		zap.String("supplier_id", supplier.ID.String()),
		zap.String("code", supplier.Code),
	)

	return supplier, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetSupplierRequest) (domain.Supplier, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Supplier{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	if item == nil {
		return domain.Supplier{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) GetByCode(ctx context.Context, req domain.GetSupplierByCodeRequest) (domain.Supplier, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return domain.Supplier{}, domain.ErrInvalidCode
	}

	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Supplier{}, err
	}
	if item == nil {
		return domain.Supplier{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSupplierRequest) (domain.ListSupplierResponse, error) {
	filter := domain.ListSupplierFilter{
		Name:        strings.TrimSpace(req.Name),
		Region:      strings.TrimSpace(req.Region),
		CreatedFrom: req.CreatedFrom,
		CreatedTo:   req.CreatedTo,
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		parsed, err := parseStatus(status)
		if err != nil {
			return domain.ListSupplierResponse{}, err
		}
		filter.Status = parsed
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
		return domain.ListSupplierResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(supplier *domain.Supplier) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        supplier.ID.String(),
			CreatedAt: supplier.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	suppliers := make([]domain.Supplier, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		suppliers = append(suppliers, *item)
	}

	resp := domain.ListSupplierResponse{Suppliers: suppliers}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSupplierRequest) (domain.Supplier, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return domain.Supplier{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	if item == nil {
		return domain.Supplier{}, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Supplier{}, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" || !strings.Contains(email, "@") {
			return domain.Supplier{}, domain.ErrInvalidEmail
		}
		item.Email = email
	}
	if req.Phone != nil {
		item.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Region != nil {
		item.Region = strings.TrimSpace(*req.Region)
	}
	if req.Status != nil {
		status, err := parseStatus(*req.Status)
		if err != nil {
			return domain.Supplier{}, err
		}
		item.Status = status
	}

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return domain.Supplier{}, err
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

func parseStatus(value string) (domain.SupplierStatus, error) {
	switch domain.SupplierStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case domain.SupplierStatusActive:
		return domain.SupplierStatusActive, nil
	case domain.SupplierStatusInactive:
		return domain.SupplierStatusInactive, nil
	default:
		return "", domain.ErrInvalidStatus
	}
}

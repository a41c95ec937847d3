package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/collection/domain"
	"github.com/trackvault/trackvault/internal/metricspush"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
	"github.com/trackvault/trackvault/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	SupplierSvc supplierdomain.Service
	ProductSvc  productdomain.Service
	RateSvc     ratedomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	supplierSvc supplierdomain.Service
	productSvc  productdomain.Service
	rateSvc     ratedomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("collection.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		supplierSvc: p.SupplierSvc,
		productSvc:  p.ProductSvc,
		rateSvc:     p.RateSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// Record writes one delivery. Retries carrying the same idempotency key
// return the first accepted row untouched. The applicable rate is
// resolved at the collection date and denormalized onto the row.
func (s *Service) Record(ctx context.Context, req domain.RecordCollectionRequest) (domain.Collection, error) {
	supplier, err := s.supplierSvc.GetByID(ctx, supplierdomain.GetSupplierRequest{ID: req.SupplierID})
	if err != nil {
		switch {
		case errors.Is(err, supplierdomain.ErrNotFound):
			return domain.Collection{}, domain.ErrSupplierNotFound
		case errors.Is(err, supplierdomain.ErrInvalidID):
			return domain.Collection{}, domain.ErrInvalidID
		}
		return domain.Collection{}, err
	}
	if !supplier.IsActive() {
		return domain.Collection{}, domain.ErrSupplierInactive
	}

	product, err := s.productSvc.GetByID(ctx, productdomain.GetProductRequest{ID: req.ProductID})
	if err != nil {
		switch {
		case errors.Is(err, productdomain.ErrNotFound):
			return domain.Collection{}, ratedomain.ErrProductNotFound
		case errors.Is(err, productdomain.ErrInvalidID):
			return domain.Collection{}, domain.ErrInvalidID
		}
		return domain.Collection{}, err
	}

	unit := strings.ToLower(strings.TrimSpace(req.Unit))
	if unit == "" {
		return domain.Collection{}, domain.ErrInvalidUnit
	}
	if req.Quantity.Sign() <= 0 {
		return domain.Collection{}, domain.ErrInvalidQuantity
	}

	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
		if err != nil {
			return domain.Collection{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	collectedAt := s.clock.Now()
	if req.CollectedAt != nil {
		collectedAt = req.CollectedAt.UTC()
	}

	// Rate resolution errors surface unchanged: a delivery without a
	// covering rate cannot be priced and is rejected.
	rate, err := s.rateSvc.ResolveCurrent(ctx, ratedomain.ResolveCurrentRateRequest{
		ProductID: product.ID.String(),
		Unit:      unit,
		On:        &collectedAt,
	})
	if err != nil {
		return domain.Collection{}, err
	}

	now := s.clock.Now()
	record := domain.Collection{
		ID:          s.genID.Generate(),
		Receipt:     ulid.Make().String(),
		SupplierID:  supplier.ID,
		ProductID:   product.ID,
		RateID:      rate.ID,
		Unit:        unit,
		Quantity:    req.Quantity,
		UnitRate:    rate.Rate,
		Amount:      req.Quantity.Mul(rate.Rate),
		CollectedAt: collectedAt,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if idempotencyKey != "" {
		record.IdempotencyKey = &idempotencyKey
	}

	inserted, err := s.repo.Insert(ctx, s.db, &record)
	if err != nil {
		return domain.Collection{}, err
	}
	if !inserted && idempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, idempotencyKey)
		if err != nil {
			return domain.Collection{}, err
		}
		if existing != nil {
			return *existing, nil
		}
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordCollectionIngested(ctx, product.Code)
	}
	metricspush.RecordCollection(product.Code)

	s.log.Info("collection recorded",
		zap.String("receipt", record.Receipt),
		zap.String("supplier_code", supplier.Code),
		zap.String("product_code", product.Code),
		zap.String("unit", unit),
		zap.String("quantity", record.Quantity.String()),
		zap.String("amount", record.Amount.String()),
	)

	return record, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetCollectionRequest) (domain.Collection, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.Collection{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Collection{}, err
	}
	if item == nil {
		return domain.Collection{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) GetByReceipt(ctx context.Context, req domain.GetCollectionByReceiptRequest) (domain.Collection, error) {
	receipt := strings.TrimSpace(req.Receipt)
	if receipt == "" {
		return domain.Collection{}, domain.ErrNotFound
	}

	item, err := s.repo.FindByReceipt(ctx, s.db, receipt)
	if err != nil {
		return domain.Collection{}, err
	}
	if item == nil {
		return domain.Collection{}, domain.ErrNotFound
	}

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListCollectionRequest) (domain.ListCollectionResponse, error) {
	filter := domain.ListCollectionFilter{
		CollectedFrom: req.CollectedFrom,
		CollectedTo:   req.CollectedTo,
	}
	if v := strings.TrimSpace(req.SupplierID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil || id == 0 {
			return domain.ListCollectionResponse{}, domain.ErrInvalidID
		}
		filter.SupplierID = id
	}
	if v := strings.TrimSpace(req.ProductID); v != "" {
		id, err := snowflake.ParseString(v)
		if err != nil || id == 0 {
			return domain.ListCollectionResponse{}, domain.ErrInvalidID
		}
		filter.ProductID = id
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
		return domain.ListCollectionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(collection *domain.Collection) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        collection.ID.String(),
			CreatedAt: collection.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	collections := make([]domain.Collection, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		collections = append(collections, *item)
	}

	resp := domain.ListCollectionResponse{Collections: collections}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

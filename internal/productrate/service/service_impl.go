package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/metricspush"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	productdomain "github.com/trackvault/trackvault/internal/product/domain"
	"github.com/trackvault/trackvault/internal/productrate/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ProductSvc productdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	productSvc productdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("productrate.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		productSvc: p.ProductSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// ResolveCurrent returns the single active rate covering the requested day.
// When more than one covers it the non-overlap invariant was broken
// upstream; the newest effective_from wins and the finding is reported, the
// data is left alone.
func (s *Service) ResolveCurrent(ctx context.Context, req domain.ResolveCurrentRateRequest) (domain.ProductRate, error) {
	product, err := s.loadProduct(ctx, req.ProductID)
	if err != nil {
		return domain.ProductRate{}, err
	}

	unit := strings.ToLower(strings.TrimSpace(req.Unit))
	if unit == "" {
		return domain.ProductRate{}, domain.ErrInvalidUnit
	}

	day := s.clock.Now()
	if req.On != nil {
		day = *req.On
	}
	day = domain.DateOf(day)

	matches, err := s.repo.FindCurrent(ctx, s.db, product.ID, unit, day)
	if err != nil {
		return domain.ProductRate{}, &domain.PersistenceError{Op: "find current rate", Err: err}
	}
	if len(matches) == 0 {
		return domain.ProductRate{}, domain.ErrNoCurrentRate
	}
	if len(matches) > 1 {
		s.log.Warn("multiple active rates cover date",
			zap.String("product_id", product.ID.String()),
			zap.String("product_code", product.Code),
			zap.String("unit", unit),
			zap.Time("on", day),
			zap.Int("matches", len(matches)),
		)
		if s.obsMetrics != nil {
			s.obsMetrics.RecordIntegrityFinding(ctx, product.Code)
		}
		metricspush.RecordIntegrityFinding(product.Code)
	}

	// Rows arrive ordered effective_from desc, id desc, so the first one is
	// the latest-starting rate.
	return *matches[0], nil
}

func (s *Service) Add(ctx context.Context, req domain.AddRateRequest) (domain.ProductRate, error) {
	product, err := s.loadProduct(ctx, req.ProductID)
	if err != nil {
		return domain.ProductRate{}, err
	}

	unit := strings.ToLower(strings.TrimSpace(req.Unit))
	if unit == "" {
		return domain.ProductRate{}, domain.ErrInvalidUnit
	}
	if !product.HasUnit(unit) {
		return domain.ProductRate{}, domain.ErrUnitNotAllowed
	}

	if req.Rate.IsNegative() {
		return domain.ProductRate{}, domain.ErrInvalidRate
	}

	if req.EffectiveFrom.IsZero() {
		return domain.ProductRate{}, domain.ErrInvalidEffectiveRange
	}
	from := domain.DateOf(req.EffectiveFrom)
	var to *time.Time
	if req.EffectiveTo != nil {
		t := domain.DateOf(*req.EffectiveTo)
		if t.Before(from) {
			return domain.ProductRate{}, domain.ErrInvalidEffectiveRange
		}
		to = &t
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	rate := domain.ProductRate{
		ID:            s.genID.Generate(),
		ProductID:     product.ID,
		Unit:          unit,
		Rate:          req.Rate,
		EffectiveFrom: from,
		EffectiveTo:   to,
		Active:        active,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			if err := s.repo.LockProductRates(ctx, tx, product.ID); err != nil {
				return &domain.PersistenceError{Op: "lock product rates", Err: err}
			}
			overlapping, err := s.repo.FindOverlapping(ctx, tx, product.ID, unit, from, to)
			if err != nil {
				return &domain.PersistenceError{Op: "check overlapping rates", Err: err}
			}
			if len(overlapping) > 0 {
				return domain.ErrRateOverlap
			}
		}
		if err := s.repo.Insert(ctx, tx, &rate); err != nil {
			return &domain.PersistenceError{Op: "insert rate", Err: err}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRateOverlap) {
			s.log.Warn("rejected overlapping rate",
				zap.String("product_id", product.ID.String()),
				zap.String("product_code", product.Code),
				zap.String("unit", unit),
				zap.Time("effective_from", from),
			)
			if s.obsMetrics != nil {
				s.obsMetrics.RecordRateConflict(ctx, product.Code)
			}
			metricspush.RecordRateConflict(product.Code)
		}
		return domain.ProductRate{}, err
	}

	s.log.Info("rate added",
		zap.String("rate_id", rate.ID.String()),
		zap.String("product_code", product.Code),
		zap.String("unit", unit),
		zap.String("rate", rate.Rate.String()),
	)

	return rate, nil
}

func (s *Service) ListForProduct(ctx context.Context, req domain.ListRatesRequest) ([]domain.ProductRate, error) {
	product, err := s.loadProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.FindByProduct(ctx, s.db, product.ID, req.ActiveOnly)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list rates", Err: err}
	}

	rates := make([]domain.ProductRate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		rates = append(rates, *item)
	}

	return rates, nil
}

func (s *Service) Deactivate(ctx context.Context, req domain.DeactivateRateRequest) (domain.ProductRate, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil || id == 0 {
		return domain.ProductRate{}, domain.ErrInvalidID
	}

	rate, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.ProductRate{}, &domain.PersistenceError{Op: "find rate", Err: err}
	}
	if rate == nil {
		return domain.ProductRate{}, domain.ErrNotFound
	}
	if !rate.Active {
		return *rate, nil
	}

	now := s.clock.Now()
	if err := s.repo.SetActive(ctx, s.db, id, false, now); err != nil {
		return domain.ProductRate{}, &domain.PersistenceError{Op: "deactivate rate", Err: err}
	}
	rate.Active = false
	rate.UpdatedAt = now

	s.log.Info("rate deactivated",
		zap.String("rate_id", rate.ID.String()),
		zap.String("product_id", rate.ProductID.String()),
	)

	return *rate, nil
}

func (s *Service) loadProduct(ctx context.Context, id string) (productdomain.Product, error) {
	product, err := s.productSvc.GetByID(ctx, productdomain.GetProductRequest{ID: id})
	if err != nil {
		switch {
		case errors.Is(err, productdomain.ErrNotFound):
			return productdomain.Product{}, domain.ErrProductNotFound
		case errors.Is(err, productdomain.ErrInvalidID):
			return productdomain.Product{}, domain.ErrInvalidID
		}
		return productdomain.Product{}, err
	}
	return product, nil
}

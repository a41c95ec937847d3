package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/reconciliation/domain"
	supplierdomain "github.com/trackvault/trackvault/internal/supplier/domain"
)

// Snapshots older than this are recomputed before the balance endpoint
// answers. The scheduler normally refreshes them well inside the window.
const snapshotMaxAge = 15 * time.Minute

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	SupplierSvc supplierdomain.Service
	Policy      *config.ReconciliationConfigHolder
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	supplierSvc supplierdomain.Service
	policy      *config.ReconciliationConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		supplierSvc: p.SupplierSvc,
		policy:      p.Policy,
	}
}

func (s *Service) SupplierBalance(ctx context.Context, supplierID string) (*domain.BalanceResponse, error) {
	supplier, err := s.loadSupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.repo.FindBySupplier(ctx, s.db, supplier.ID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil || s.clock.Now().Sub(snapshot.ComputedAt) > snapshotMaxAge {
		snapshot, err = s.rebuild(ctx, supplier)
		if err != nil {
			return nil, err
		}
	}

	resp := s.annotate(*snapshot, supplier.Code, supplier.Name, s.policy.Get())
	return &resp, nil
}

func (s *Service) Overview(ctx context.Context) ([]domain.BalanceResponse, error) {
	var rows []overviewRow
	if err := s.db.WithContext(ctx).Raw(
		`
		SELECT
			b.supplier_id,
			s.code AS supplier_code,
			s.name AS supplier_name,
			b.collected_total,
			b.paid_total,
			b.outstanding,
			b.last_collection_at,
			b.last_payment_at,
			b.oldest_unsettled_at,
			b.computed_at
		FROM supplier_balances b
		JOIN suppliers s ON s.id = b.supplier_id
		WHERE b.outstanding <> 0
		ORDER BY b.outstanding DESC
		`,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	cfg := s.policy.Get()
	out := make([]domain.BalanceResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.annotate(domain.SupplierBalance{
			SupplierID:        row.SupplierID,
			CollectedTotal:    row.CollectedTotal,
			PaidTotal:         row.PaidTotal,
			Outstanding:       row.Outstanding,
			LastCollectionAt:  row.LastCollectionAt,
			LastPaymentAt:     row.LastPaymentAt,
			OldestUnsettledAt: row.OldestUnsettledAt,
			ComputedAt:        row.ComputedAt,
		}, row.SupplierCode, row.SupplierName, cfg))
	}

	return out, nil
}

func (s *Service) Rebuild(ctx context.Context, supplierID string) (*domain.SupplierBalance, error) {
	supplier, err := s.loadSupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	return s.rebuild(ctx, supplier)
}

type overviewRow struct {
	SupplierID        snowflake.ID    `gorm:"column:supplier_id"`
	SupplierCode      string          `gorm:"column:supplier_code"`
	SupplierName      string          `gorm:"column:supplier_name"`
	CollectedTotal    decimal.Decimal `gorm:"column:collected_total"`
	PaidTotal         decimal.Decimal `gorm:"column:paid_total"`
	Outstanding       decimal.Decimal `gorm:"column:outstanding"`
	LastCollectionAt  *time.Time      `gorm:"column:last_collection_at"`
	LastPaymentAt     *time.Time      `gorm:"column:last_payment_at"`
	OldestUnsettledAt *time.Time      `gorm:"column:oldest_unsettled_at"`
	ComputedAt        time.Time       `gorm:"column:computed_at"`
}

type settlementRow struct {
	CollectedAt time.Time       `gorm:"column:collected_at"`
	Amount      decimal.Decimal `gorm:"column:amount"`
}

func (s *Service) rebuild(ctx context.Context, supplier supplierdomain.Supplier) (*domain.SupplierBalance, error) {
	var snapshot *domain.SupplierBalance
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		collected, err := s.sumAmount(ctx, tx,
			`SELECT COALESCE(SUM(amount), 0) AS total FROM collections WHERE supplier_id = ?`, supplier.ID)
		if err != nil {
			return err
		}
		paid, err := s.sumAmount(ctx, tx,
			`SELECT COALESCE(SUM(amount), 0) AS total FROM payments WHERE supplier_id = ?`, supplier.ID)
		if err != nil {
			return err
		}

		lastCollection, err := s.latestTimestamp(ctx, tx,
			`SELECT collected_at AS at FROM collections WHERE supplier_id = ? ORDER BY collected_at DESC LIMIT 1`, supplier.ID)
		if err != nil {
			return err
		}
		lastPayment, err := s.latestTimestamp(ctx, tx,
			`SELECT paid_at AS at FROM payments WHERE supplier_id = ? ORDER BY paid_at DESC LIMIT 1`, supplier.ID)
		if err != nil {
			return err
		}

		oldestUnsettled, err := s.oldestUnsettledAt(ctx, tx, supplier.ID, paid)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		snapshot = &domain.SupplierBalance{
			ID:                s.genID.Generate(),
			SupplierID:        supplier.ID,
			CollectedTotal:    collected,
			PaidTotal:         paid,
			Outstanding:       collected.Sub(paid),
			LastCollectionAt:  lastCollection,
			LastPaymentAt:     lastPayment,
			OldestUnsettledAt: oldestUnsettled,
			ComputedAt:        now,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return s.repo.Upsert(ctx, tx, snapshot)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("supplier balance rebuilt",
		zap.String("supplier_code", supplier.Code),
		zap.String("outstanding", snapshot.Outstanding.String()),
	)

	return snapshot, nil
}

func (s *Service) sumAmount(ctx context.Context, tx *gorm.DB, query string, supplierID snowflake.ID) (decimal.Decimal, error) {
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := tx.WithContext(ctx).Raw(query, supplierID).Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total, nil
}

func (s *Service) latestTimestamp(ctx context.Context, tx *gorm.DB, query string, supplierID snowflake.ID) (*time.Time, error) {
	var row struct {
		At *time.Time `gorm:"column:at"`
	}
	if err := tx.WithContext(ctx).Raw(query, supplierID).Scan(&row).Error; err != nil {
		return nil, err
	}
	return row.At, nil
}

// oldestUnsettledAt applies payments to collections oldest-first and
// returns the collection date of the first delivery the paid total does
// not fully cover. Nil means everything is settled.
func (s *Service) oldestUnsettledAt(ctx context.Context, tx *gorm.DB, supplierID snowflake.ID, paid decimal.Decimal) (*time.Time, error) {
	var rows []settlementRow
	if err := tx.WithContext(ctx).Raw(
		`SELECT collected_at, amount FROM collections WHERE supplier_id = ? ORDER BY collected_at ASC, id ASC`,
		supplierID,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	running := decimal.Zero
	for _, row := range rows {
		running = running.Add(row.Amount)
		if running.GreaterThan(paid) {
			at := row.CollectedAt
			return &at, nil
		}
	}
	return nil, nil
}

func (s *Service) annotate(snapshot domain.SupplierBalance, code, name string, cfg config.ReconciliationConfig) domain.BalanceResponse {
	now := s.clock.Now()
	return domain.BalanceResponse{
		SupplierID:        snapshot.SupplierID.String(),
		SupplierCode:      code,
		SupplierName:      name,
		CollectedTotal:    snapshot.CollectedTotal,
		PaidTotal:         snapshot.PaidTotal,
		Outstanding:       snapshot.Outstanding,
		LastCollectionAt:  snapshot.LastCollectionAt,
		LastPaymentAt:     snapshot.LastPaymentAt,
		OldestUnsettledAt: snapshot.OldestUnsettledAt,
		ComputedAt:        snapshot.ComputedAt,
		AgingBucket:       computeAgingBucket(cfg, snapshot.OldestUnsettledAt, now),
		RiskLevel:         computeRiskLevel(cfg, snapshot.Outstanding, snapshot.OldestUnsettledAt, now),
	}
}

func (s *Service) loadSupplier(ctx context.Context, id string) (supplierdomain.Supplier, error) {
	supplier, err := s.supplierSvc.GetByID(ctx, supplierdomain.GetSupplierRequest{ID: id})
	if err != nil {
		switch {
		case errors.Is(err, supplierdomain.ErrNotFound):
			return supplierdomain.Supplier{}, domain.ErrSupplierNotFound
		case errors.Is(err, supplierdomain.ErrInvalidID):
			return supplierdomain.Supplier{}, domain.ErrInvalidID
		}
		return supplierdomain.Supplier{}, err
	}
	return supplier, nil
}

func daysOutstanding(oldest *time.Time, now time.Time) int {
	if oldest == nil {
		return 0
	}
	days := int(now.Sub(*oldest).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func computeAgingBucket(cfg config.ReconciliationConfig, oldest *time.Time, now time.Time) string {
	if oldest == nil {
		return ""
	}
	days := daysOutstanding(oldest, now)
	for _, bucket := range cfg.AgingBuckets {
		if days < bucket.MinDays {
			continue
		}
		if bucket.MaxDays != nil && days > *bucket.MaxDays {
			continue
		}
		return bucket.Label
	}
	return ""
}

// computeRiskLevel walks the configured levels in order, first match
// wins. Levels are expected to end with a catch-all.
func computeRiskLevel(cfg config.ReconciliationConfig, outstanding decimal.Decimal, oldest *time.Time, now time.Time) string {
	days := daysOutstanding(oldest, now)
	for _, level := range cfg.RiskLevels {
		if outstanding.LessThan(decimal.NewFromFloat(level.MinOutstanding)) {
			continue
		}
		if days < level.MinDays {
			continue
		}
		return level.Level
	}
	return "none"
}

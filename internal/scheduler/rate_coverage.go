package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/trackvault/trackvault/internal/metricspush"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	ratedomain "github.com/trackvault/trackvault/internal/productrate/domain"
)

// Finding kinds reported by the rate coverage sweep.
const (
	FindingMissingCurrentRate = "missing_current_rate"
	FindingOverlappingRates   = "overlapping_rates"
)

// CoverageFinding flags a product unit whose rate table needs operator
// attention. The sweep reports; it never mutates rates.
type CoverageFinding struct {
	Kind        string
	ProductID   snowflake.ID
	ProductCode string
	Unit        string
}

type workProduct struct {
	ID    snowflake.ID                `gorm:"column:id"`
	Code  string                      `gorm:"column:code"`
	Units datatypes.JSONSlice[string] `gorm:"column:units"`
}

// RateCoverageJob runs the sweep for its side effects: warning logs and
// integrity metrics. Findings themselves are only returned by
// SweepRateCoverage.
func (s *Scheduler) RateCoverageJob(ctx context.Context) error {
	_, err := s.SweepRateCoverage(ctx)
	return err
}

// SweepRateCoverage walks every active product and unit and reports
// units without a rate covering today and units whose active rates
// overlap. Collections against a flagged unit fail or resolve
// ambiguously, so each finding is logged loudly.
func (s *Scheduler) SweepRateCoverage(ctx context.Context) ([]CoverageFinding, error) {
	ctx, run, owner := s.ensureJobRun(ctx, "rate_coverage", s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	today := ratedomain.DateOf(s.clock.Now())

	var products []workProduct
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, code, units FROM products WHERE active = ? ORDER BY id ASC`,
		true,
	).Scan(&products).Error; err != nil {
		s.logSchedulerError(ctx, run, "scheduler.coverage.fetch.failed", "rate_coverage", 0, err)
		return nil, err
	}

	var findings []CoverageFinding
	for _, product := range products {
		if ctx.Err() != nil {
			return findings, ctx.Err()
		}
		productFindings, err := s.sweepProduct(ctx, product, today)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.coverage.sweep.failed", "rate_coverage", 0, err,
				zap.String("product_code", product.Code),
			)
			return findings, err
		}
		findings = append(findings, productFindings...)
		run.AddProcessed(1)
	}

	log := s.logger(ctx)
	for _, finding := range findings {
		s.obsMetrics.RecordIntegrityFinding(ctx, finding.ProductCode)
		metricspush.RecordIntegrityFinding(finding.ProductCode)
		log.Warn("rate coverage finding",
			zap.String("kind", finding.Kind),
			zap.String("product_id", idString(finding.ProductID)),
			zap.String("product_code", finding.ProductCode),
			zap.String("unit", finding.Unit),
		)
	}
	obsmetrics.Scheduler().AddBatchProcessed("rate_coverage", "products", len(products))
	return findings, nil
}

func (s *Scheduler) sweepProduct(ctx context.Context, product workProduct, today time.Time) ([]CoverageFinding, error) {
	var rates []ratedomain.ProductRate
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, product_id, unit, rate, effective_from, effective_to, active
		 FROM product_rates
		 WHERE product_id = ? AND active = ?
		 ORDER BY unit ASC, effective_from ASC, id ASC`,
		product.ID, true,
	).Scan(&rates).Error; err != nil {
		return nil, err
	}

	byUnit := make(map[string][]ratedomain.ProductRate, len(product.Units))
	for _, rate := range rates {
		byUnit[rate.Unit] = append(byUnit[rate.Unit], rate)
	}

	var findings []CoverageFinding
	for _, unit := range product.Units {
		unitRates := byUnit[unit]

		covered := false
		for _, rate := range unitRates {
			if rate.Covers(today) {
				covered = true
				break
			}
		}
		if !covered {
			findings = append(findings, CoverageFinding{
				Kind:        FindingMissingCurrentRate,
				ProductID:   product.ID,
				ProductCode: product.Code,
				Unit:        unit,
			})
		}

		// Rates are sorted by effective_from, so any overlap shows up
		// between neighbours.
		for i := 1; i < len(unitRates); i++ {
			prev, curr := unitRates[i-1], unitRates[i]
			if ratedomain.IntervalsOverlap(prev.EffectiveFrom, prev.EffectiveTo, curr.EffectiveFrom, curr.EffectiveTo) {
				findings = append(findings, CoverageFinding{
					Kind:        FindingOverlappingRates,
					ProductID:   product.ID,
					ProductCode: product.Code,
					Unit:        unit,
				})
				break
			}
		}
	}
	return findings, nil
}

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
)

// BalanceRefreshJob recomputes supplier balance snapshots that are
// missing or older than the configured max age. Suppliers without any
// snapshot are claimed before stale ones so new suppliers show up in
// the overview without waiting for a balance read.
func (s *Scheduler) BalanceRefreshJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, "balance_refresh", s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}
	staleBefore := s.clock.Now().UTC().Add(-s.cfg.SnapshotMaxAge)
	var jobErr error

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		supplierIDs, err := s.claimSuppliersForRefresh(ctx, staleBefore, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.balance.claim.failed", "balance_refresh", 0, err)
			return errors.Join(jobErr, err)
		}
		if len(supplierIDs) == 0 {
			break
		}

		processed := 0
		for _, supplierID := range supplierIDs {
			s.logSupplierClaimed(ctx, "balance_refresh", supplierID)
			if _, err := s.reconSvc.Rebuild(ctx, supplierID.String()); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logSchedulerError(ctx, run, "scheduler.balance.rebuild.failed", "balance_refresh", supplierID, err)
				continue
			}
			processed++
		}
		run.AddProcessed(processed)
		obsmetrics.Scheduler().AddBatchProcessed("balance_refresh", "supplier_balances", processed)

		// A short batch means the backlog is drained. A full batch with
		// zero progress means every remaining supplier is failing; stop
		// instead of re-claiming the same rows.
		if len(supplierIDs) < s.cfg.BatchSize || processed == 0 {
			break
		}
	}

	return jobErr
}

// claimSuppliersForRefresh picks suppliers whose snapshot is absent or
// was computed before the stale cutoff. Rows without a snapshot sort
// first, then the oldest snapshots.
func (s *Scheduler) claimSuppliersForRefresh(ctx context.Context, staleBefore time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = s.cfg.BatchSize
	}
	query := `SELECT s.id
		 FROM suppliers s
		 LEFT JOIN supplier_balances b ON b.supplier_id = s.id
		 WHERE b.computed_at IS NULL OR b.computed_at < ?
		 ORDER BY CASE WHEN b.computed_at IS NULL THEN 0 ELSE 1 END, b.computed_at ASC, s.id ASC`
	if s.db.Dialector.Name() != "sqlite" {
		query += `
		 FOR UPDATE OF s SKIP LOCKED`
	}
	query += `
		 LIMIT ?`

	var rows []struct {
		ID snowflake.ID `gorm:"column:id"`
	}
	if err := s.db.WithContext(ctx).Raw(query, staleBefore, limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

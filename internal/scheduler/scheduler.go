package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/clock"
	obsmetrics "github.com/trackvault/trackvault/internal/observability/metrics"
	"github.com/trackvault/trackvault/internal/ratelimit"
	recondomain "github.com/trackvault/trackvault/internal/reconciliation/domain"
)

// schedulerLockKey serializes runs across instances when redis is
// configured. Without redis every instance runs; the jobs are idempotent
// so that only costs duplicate work.
const schedulerLockKey = "scheduler:run"

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	ReconSvc recondomain.Service
	GenID    *snowflake.Node
	Clock    clock.Clock

	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	reconSvc   recondomain.Service
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.ReconSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		reconSvc:   p.ReconSvc,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job. When another instance holds the
// run lock the whole sweep is deferred, not queued.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, acquired, err := s.acquireRunLock(parent)
	if err != nil {
		s.log.Warn("scheduler lock unavailable, running unguarded", zap.Error(err))
	} else if !acquired {
		obsmetrics.Scheduler().IncBatchDeferred("scheduler", obsmetrics.SchedulerBatchDeferredReasonLockHeld)
		s.log.Debug("scheduler run deferred, lock held elsewhere")
		return nil
	}
	if release != nil {
		defer release()
	}

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"balance_refresh", s.isJobEnabled("balance_refresh"), func(ctx context.Context) error {
			return s.runJob(ctx, "balance_refresh", s.cfg.BatchSize, 2*time.Minute, s.BalanceRefreshJob)
		}},
		{"rate_coverage", s.isJobEnabled("rate_coverage"), func(ctx context.Context) error {
			return s.runJob(ctx, "rate_coverage", s.cfg.BatchSize, 2*time.Minute, s.RateCoverageJob)
		}},
	}

	var runErr error
	for _, job := range jobs {
		if job.Enabled {
			runErr = errors.Join(runErr, job.Run(parent))
		}
	}

	return runErr
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) acquireRunLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return nil, true, nil
	}
	token, ok, err := s.locker.TryLock(ctx, schedulerLockKey, s.cfg.LockTTL)
	if err != nil {
		return nil, true, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		if err := s.locker.Release(context.Background(), schedulerLockKey, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.Error(err))
		}
	}
	return release, true, nil
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

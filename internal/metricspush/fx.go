package metricspush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/config"
)

var Module = fx.Module("metrics.push",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Invoke(Register),
)

// Register installs the recorder and starts the push worker when an
// exporter is configured. Push failures log once per streak; the worker
// never touches the request path.
func Register(lc fx.Lifecycle, cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger, db *gorm.DB) {
	if pusher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pushMetrics := newMetrics(registry)
	setRecorder(&recorder{metrics: pushMetrics})

	interval := time.Duration(cfg.Metrics.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				var failing bool
				pushNow := func() {
					updateOutstandingTotal(ctx, pushMetrics, db)
					if err := pusher.Push(ctx, registry); err != nil {
						if !failing {
							logger.Warn("metrics push failed", zap.Error(err))
							failing = true
						}
						return
					}
					failing = false
				}

				pushNow()
				for {
					select {
					case <-ticker.C:
						pushNow()
					case <-ctx.Done():
						logger.Info("stopping metrics push worker")
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func updateOutstandingTotal(ctx context.Context, m *metrics, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	var row struct {
		Total float64 `gorm:"column:total"`
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(outstanding), 0) AS total FROM supplier_balances`,
	).Scan(&row).Error; err != nil {
		return
	}
	m.setOutstandingTotal(row.Total)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/metricspush"
	"github.com/trackvault/trackvault/internal/observability"
	"github.com/trackvault/trackvault/internal/ratelimit"
	"github.com/trackvault/trackvault/internal/reconciliation"
	"github.com/trackvault/trackvault/internal/scheduler"
	"github.com/trackvault/trackvault/internal/supplier"
	"github.com/trackvault/trackvault/pkg/db"
)

// Standalone scheduler worker. Runs the background jobs against the same
// database as the API, without the HTTP surface. When deploying this
// split, set SCHEDULER_ENABLED=false on the API instances so only the
// worker sweeps.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Balance snapshots need the supplier and reconciliation
		// services; the redis locker keeps parallel workers from
		// sweeping at the same time.
		supplier.Module,
		reconciliation.Module,
		ratelimit.Module,
		metricspush.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.InstanceID)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/trackvault/trackvault/internal/clock"
	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/migration"
	"github.com/trackvault/trackvault/internal/observability"
	"github.com/trackvault/trackvault/internal/scheduler"
	"github.com/trackvault/trackvault/internal/server"
	"github.com/trackvault/trackvault/pkg/db"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// server.Module carries config.Module and every domain module.
		server.Module,
		scheduler.Module,
		migration.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the process-wide ID generator. Each running
// instance needs a distinct INSTANCE_ID so generated IDs never collide.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.InstanceID)
}

package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/trackvault/trackvault/internal/config"
	"github.com/trackvault/trackvault/internal/seed"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)

package migration

import (
	"github.com/smallbiznis/coldline/internal/config"
	recorddomain "github.com/smallbiznis/coldline/internal/record/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite/mysql are dev and test targets; AutoMigrate keeps them
			// in sync without maintaining per-dialect SQL.
			return conn.AutoMigrate(&recorddomain.Record{})
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

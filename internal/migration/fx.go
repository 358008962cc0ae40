package migration

import (
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrated is provided once the schema is current; depend on it to run code that
// needs the tables.
type Migrated struct{}

var Module = fx.Module("migrations",
	fx.Provide(Run),
)

func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) (Migrated, error) {
	if cfg.DBType == db.TypePostgres {
		sqlDB, err := conn.DB()
		if err != nil {
			return Migrated{}, err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return Migrated{}, err
		}
	} else if err := AutoMigrate(conn); err != nil {
		return Migrated{}, err
	}
	log.Info("database schema ready", zap.String("dialect", cfg.DBType))
	return Migrated{}, nil
}

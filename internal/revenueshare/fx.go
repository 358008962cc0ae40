package revenueshare

import (
	"context"

	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/migration"
	"github.com/smallbiznis/settlement/internal/revenueshare/domain"
	"github.com/smallbiznis/settlement/internal/revenueshare/repository"
	"github.com/smallbiznis/settlement/internal/revenueshare/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("revenueshare.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Invoke(ensureDefault),
)

// ensureDefault seeds the configured default rule set on an empty table.
func ensureDefault(_ migration.Migrated, svc domain.Service, holder *config.SettlementHolder, log *zap.Logger) error {
	cfg, err := svc.EnsureDefault(context.Background(), holder.Current().RevenueShare)
	if err != nil {
		return err
	}
	log.Info("default revenue share configuration",
		zap.String("name", cfg.Name),
		zap.Int("version", cfg.Version),
	)
	return nil
}

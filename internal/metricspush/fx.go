package metricspush

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry holds gauges that are only meaningful in pushed snapshots.
type Registry struct {
	*prometheus.Registry
}

var Module = fx.Module("metrics.push",
	fx.Provide(func() Registry { return Registry{prometheus.NewRegistry()} }),
	fx.Provide(NewPusher),
	fx.Provide(func(db *gorm.DB, reg Registry) (*Backlog, error) {
		return NewBacklog(db, reg.Registry)
	}),
	fx.Provide(func(pusher Pusher, backlog *Backlog, reg Registry, log *zap.Logger) *Job {
		return NewJob(pusher, backlog, reg.Registry, log)
	}),
)

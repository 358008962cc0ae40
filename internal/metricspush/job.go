package metricspush

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Job refreshes the backlog gauges and pushes the process registry together
// with the push-only registry.
type Job struct {
	pusher   Pusher
	backlog  *Backlog
	gatherer prometheus.Gatherer
	log      *zap.Logger
}

func NewJob(pusher Pusher, backlog *Backlog, registry *prometheus.Registry, log *zap.Logger) *Job {
	if pusher == nil {
		return nil
	}
	return &Job{
		pusher:   pusher,
		backlog:  backlog,
		gatherer: prometheus.Gatherers{registry, prometheus.DefaultGatherer},
		log:      log.Named("metrics.push"),
	}
}

func (j *Job) Run(ctx context.Context) error {
	if j == nil {
		return nil
	}
	if j.backlog != nil {
		if err := j.backlog.Refresh(ctx); err != nil {
			j.log.Warn("backlog refresh failed", zap.Error(err))
		}
	}
	if err := j.pusher.Push(ctx, j.gatherer); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

package scheduler

import (
	"time"

	"github.com/smallbiznis/settlement/internal/config"
)

// Config controls the loop interval, per-job batch sizes and soft timeouts.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	EnabledJobs []string
	JobTimeout  time.Duration
	// PushInterval throttles metrics_push independently of RunInterval.
	PushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		RunInterval:  time.Minute,
		BatchSize:    50,
		JobTimeout:   30 * time.Second,
		PushInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.PushInterval <= 0 {
		c.PushInterval = defaults.PushInterval
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:      cfg.Scheduler.Enabled,
		RunInterval:  cfg.Scheduler.Interval,
		BatchSize:    cfg.Scheduler.BatchSize,
		EnabledJobs:  cfg.Scheduler.Jobs,
		PushInterval: cfg.MetricsPush.Interval,
	}
}

package db

import (
	"time"

	"github.com/smallbiznis/settlement/internal/config"
)

// Pool holds connection pool limits; durations are in seconds as configured.
type Pool struct {
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

func poolFromConfig(cfg config.Config) Pool {
	return Pool{
		MaxIdleConn:     cfg.DBMaxIdleConn,
		MaxOpenConn:     cfg.DBMaxOpenConn,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}
}

func (p Pool) lifetime() time.Duration { return time.Duration(p.ConnMaxLifetime) * time.Second }

func (p Pool) idleTime() time.Duration { return time.Duration(p.ConnMaxIdleTime) * time.Second }

package metricspush

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var backlogTables = []string{"transactions", "payouts", "refunds"}

var openStatuses = []string{"pending", "processing"}

// Backlog gauges open work per table so a pushed snapshot shows what is
// waiting on providers.
type Backlog struct {
	db    *gorm.DB
	gauge *prometheus.GaugeVec
}

func NewBacklog(db *gorm.DB, registry *prometheus.Registry) (*Backlog, error) {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settlement_open_records",
		Help: "Records not yet in a terminal state.",
	}, []string{"resource", "status"})
	if err := registry.Register(gauge); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		gauge = already.ExistingCollector.(*prometheus.GaugeVec)
	}
	return &Backlog{db: db, gauge: gauge}, nil
}

func (b *Backlog) Refresh(ctx context.Context) error {
	for _, table := range backlogTables {
		var rows []struct {
			Status string
			Total  int64
		}
		err := b.db.WithContext(ctx).Table(table).
			Select("status, COUNT(*) AS total").
			Where("status IN ?", openStatuses).
			Group("status").
			Scan(&rows).Error
		if err != nil {
			return err
		}
		for _, status := range openStatuses {
			b.gauge.WithLabelValues(table, status).Set(0)
		}
		for _, row := range rows {
			b.gauge.WithLabelValues(table, row.Status).Set(float64(row.Total))
		}
	}
	return nil
}

func (b *Backlog) Gauge() *prometheus.GaugeVec {
	return b.gauge
}

// Package notification fires status-change events at an external collaborator.
// Delivery is best effort: notifiers log failures and never fail the caller.
package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type EntityType string

const (
	EntityTransaction EntityType = "transaction"
	EntityPayout      EntityType = "payout"
	EntityRefund      EntityType = "refund"
)

type Event struct {
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId"`
	Status     string     `json:"status"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	OccurredAt time.Time  `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LogNotifier writes events to the log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notification")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) {
	n.log.Info("status changed",
		zap.String("entity_type", string(event.EntityType)),
		zap.String("entity_id", event.EntityID),
		zap.String("status", event.Status),
		zap.Int64("amount", event.Amount),
		zap.String("currency", event.Currency),
	)
}

// Multi fans an event out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, event Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, event)
		}
	}
}

// Nop drops events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

package notification

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	events []Event
}

func (r *recorder) Notify(_ context.Context, e Event) { r.events = append(r.events, e) }

func TestMultiFansOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi{a, nil, b}
	m.Notify(context.Background(), Event{EntityType: EntityPayout, EntityID: "1", Status: "completed"})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, EntityPayout, b.events[0].EntityType)
}

func TestLogNotifierWritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	NewLogNotifier(zap.New(core)).Notify(context.Background(), Event{
		EntityType: EntityTransaction,
		EntityID:   "42",
		Status:     "completed",
		Amount:     97500,
		Currency:   "NGN",
	})

	entries := logs.FilterMessage("status changed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "42", fields["entity_id"])
	assert.Equal(t, int64(97500), fields["amount"])
}

func TestRedisNotifierLogsPublishFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	n := NewRedisNotifier(client, "settlement.events", zap.New(core))
	n.Notify(context.Background(), Event{EntityType: EntityRefund, EntityID: "7"})

	assert.Equal(t, 1, logs.FilterMessage("failed to publish event").Len())
}

func TestNewWithoutRedisLogsOnly(t *testing.T) {
	n := New(Params{Cfg: config.Config{}, Log: zap.NewNop()})
	m, ok := n.(Multi)
	require.True(t, ok)
	assert.Len(t, m, 1)
}

package notification

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisNotifier publishes events as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	log     *zap.Logger
}

func NewRedisNotifier(client redis.UniversalClient, channel string, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		timeout: 2 * time.Second,
		log:     log.Named("notification.redis"),
	}
}

func (n *RedisNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.log.Warn("failed to encode event", zap.Error(err))
		return
	}
	// Detached from the request: a cancelled caller must not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.client.Publish(pubCtx, n.channel, payload).Err(); err != nil {
		n.log.Warn("failed to publish event",
			zap.String("channel", n.channel),
			zap.String("entity_type", string(event.EntityType)),
			zap.String("entity_id", event.EntityID),
			zap.Error(err),
		)
	}
}

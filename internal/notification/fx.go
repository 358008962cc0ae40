package notification

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/settlement/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Cfg   config.Config
	Log   *zap.Logger
	Redis *redis.Client `optional:"true"`
}

func New(p Params) Notifier {
	notifiers := Multi{NewLogNotifier(p.Log)}
	if p.Redis != nil {
		notifiers = append(notifiers, NewRedisNotifier(p.Redis, p.Cfg.NotificationChannel, p.Log))
	}
	return notifiers
}

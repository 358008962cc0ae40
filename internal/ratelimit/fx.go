package ratelimit

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/settlement/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(provideCallbackLimiter),
)

type limiterParams struct {
	fx.In

	Config config.Config
	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
}

// provideCallbackLimiter returns nil when disabled or when redis is absent.
func provideCallbackLimiter(p limiterParams) (*CallbackLimiter, error) {
	if !p.Config.RateLimit.Enabled {
		return nil, nil
	}
	if p.Client == nil {
		p.Log.Warn("callback rate limit enabled without REDIS_ADDR; callbacks are not throttled")
		return nil, nil
	}
	return NewCallbackLimiter(NewTokenBucket(p.Client), p.Config.RateLimit, p.Log)
}

package lock

import (
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/settlement/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultRedisTTL = 30 * time.Second

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)

// NewRedisClient returns nil when no redis address is configured.
func NewRedisClient(cfg config.Config) *redis.Client {
	if !cfg.RedisEnabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewLocker(cfg config.Config, client *redis.Client, log *zap.Logger) (Locker, error) {
	if cfg.LockBackend == config.LockBackendRedis && client != nil {
		log.Info("using redis locks", zap.String("addr", cfg.RedisAddr))
		return NewRedisLocker(client, defaultRedisTTL, log)
	}
	if cfg.LockBackend == config.LockBackendRedis {
		log.Warn("redis lock backend requested without REDIS_ADDR; falling back to in-process locks")
	}
	return NewKeyedMutex(), nil
}

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/settlement/internal/config"
	"go.uber.org/zap"
)

const keyCallback = "ratelimit:callback:%s:%s"

var ErrRateLimited = errors.New("rate_limited")

// CallbackLimiter throttles provider notifications per provider and source
// address. A nil limiter allows everything.
type CallbackLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewCallbackLimiter(bucket Bucket, cfg config.RateLimitConfig, log *zap.Logger) (*CallbackLimiter, error) {
	if bucket == nil {
		return nil, ErrNotConfigured
	}
	if cfg.CallbackRate <= 0 || cfg.CallbackBurst <= 0 {
		return nil, ErrInvalidLimit
	}
	return &CallbackLimiter{
		bucket: bucket,
		rate:   cfg.CallbackRate,
		burst:  cfg.CallbackBurst,
		log:    log.Named("ratelimit.callback"),
	}, nil
}

// Allow returns ErrRateLimited when the bucket is empty. Backend failures are
// logged and let the request through; callbacks are re-verified anyway.
func (l *CallbackLimiter) Allow(ctx context.Context, provider, source string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyCallback, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(source))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("callback rate limit check failed", zap.String("provider", provider), zap.Error(err))
		return Result{Allowed: true}, nil
	}
	if !res.Allowed {
		l.log.Warn("callback rate limited",
			zap.String("provider", provider),
			zap.String("source", source),
			zap.Duration("retry_after", res.RetryAfter),
		)
		return res, ErrRateLimited
	}
	return res, nil
}

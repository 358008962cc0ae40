package provider

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/settlement/internal/provider/domain"
)

// CallPolicy bounds one logical provider operation.
type CallPolicy struct {
	// Attempts includes the first call; values below 1 mean one attempt.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
	Timeout    time.Duration
}

type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeRejected    Outcome = "rejected"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

// Classify names the result of a provider call for logs and metrics.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case IsUnknownOutcome(err):
		return OutcomeTimeout
	case errors.Is(err, domain.ErrProviderUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, domain.ErrProviderRejected):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// IsUnknownOutcome reports a call that may or may not have taken effect at the
// provider. Such calls resolve through verification, never by assuming failure.
func IsUnknownOutcome(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Call runs fn with a per-attempt timeout and retries transient failures with
// exponential backoff. Rejections and unknown outcomes are returned at once.
// observe, when set, sees every attempt.
func Call(ctx context.Context, p CallPolicy, fn func(ctx context.Context) error, observe func(Outcome)) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Backoff
	for attempt := 1; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		err := fn(callCtx)
		cancel()
		if observe != nil {
			observe(Classify(err))
		}
		if err == nil || !domain.IsTransient(err) || attempt >= attempts {
			return attempt, err
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, err
			case <-timer.C:
			}
			wait *= 2
			if p.MaxBackoff > 0 && wait > p.MaxBackoff {
				wait = p.MaxBackoff
			}
		}
	}
}

// Backoff returns base*2^(retries-1) capped at max, for retries scheduled across runs.
func Backoff(base, max time.Duration, retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	d := base
	for i := 1; i < retries; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

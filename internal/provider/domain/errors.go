package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable is transient: the call may be retried.
	ErrProviderUnavailable = errors.New("provider_unavailable")
	// ErrProviderRejected is terminal for the request that caused it.
	ErrProviderRejected = errors.New("provider_rejected")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidCallback  = errors.New("invalid_callback")
)

// ProviderError carries the provider's own reason alongside the error class.
type ProviderError struct {
	Kind     error
	Provider string
	Reason   string
}

func (e *ProviderError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Kind }

func Unavailable(provider, reason string) error {
	return &ProviderError{Kind: ErrProviderUnavailable, Provider: provider, Reason: reason}
}

func Rejected(provider, reason string) error {
	return &ProviderError{Kind: ErrProviderRejected, Provider: provider, Reason: reason}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// Reason extracts a human readable failure reason suitable for persisting.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var perr *ProviderError
	if errors.As(err, &perr) && perr.Reason != "" {
		return perr.Reason
	}
	return err.Error()
}

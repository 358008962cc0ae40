package domain

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSeller       = errors.New("invalid_seller")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidSource       = errors.New("invalid_balance_source")
	// ErrPendingMismatch means a release or compensation exceeds what is reserved.
	ErrPendingMismatch = errors.New("pending_balance_mismatch")
)

package feerule

import "errors"

var (
	ErrUnknownCategory          = errors.New("unknown_category")
	ErrAmbiguousRules           = errors.New("ambiguous_rules")
	ErrInvalidRule              = errors.New("invalid_rule")
	ErrUnsupportedPaymentMethod = errors.New("unsupported_payment_method")
	ErrInvalidAmount            = errors.New("invalid_amount")
)

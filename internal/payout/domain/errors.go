package domain

import "errors"

var (
	ErrPayoutNotFound          = errors.New("payout_not_found")
	ErrAccountNotFound         = errors.New("payout_account_not_found")
	ErrInvalidPayoutAmount     = errors.New("invalid_payout_amount")
	ErrInvalidPayoutState      = errors.New("invalid_payout_state")
	ErrInvalidPayoutConfig     = errors.New("invalid_payout_config")
	ErrUnsupportedPayoutMethod = errors.New("unsupported_payout_method")
	ErrInvalidAccount          = errors.New("invalid_payout_account")
	ErrInvalidSeller           = errors.New("invalid_seller")
	ErrNothingToPay            = errors.New("nothing_to_pay")
)

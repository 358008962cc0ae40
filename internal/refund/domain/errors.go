package domain

import "errors"

var (
	ErrRefundNotFound        = errors.New("refund_not_found")
	ErrRefundExceedsOriginal = errors.New("refund_exceeds_original")
	ErrInvalidRefundAmount   = errors.New("invalid_refund_amount")
	ErrInvalidRefundState    = errors.New("invalid_refund_state")
)

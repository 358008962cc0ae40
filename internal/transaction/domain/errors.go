package domain

import "errors"

var (
	ErrTransactionNotFound     = errors.New("transaction_not_found")
	ErrInvalidTransactionState = errors.New("invalid_transaction_state")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidPayer            = errors.New("invalid_payer")
	ErrInvalidPaymentMethod    = errors.New("invalid_payment_method")
	ErrInvalidNote             = errors.New("invalid_note")
)

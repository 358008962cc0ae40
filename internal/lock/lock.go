// Package lock serializes work on one entity (a transaction, a payout, a seller
// balance) across concurrent request handlers.
package lock

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyKey = errors.New("lock_key_empty")

// Locker blocks until key is held or ctx ends. The returned release must be called
// exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func TransactionKey(id string) string { return "txn:" + id }

func PayoutKey(id string) string { return "payout:" + id }

func RefundKey(id string) string { return "refund:" + id }

// BalanceKey orders every credit and debit of one seller balance.
func BalanceKey(sellerID, currency string) string {
	return "balance:" + sellerID + ":" + strings.ToUpper(currency)
}

// WithLock runs fn while key is held.
func WithLock(ctx context.Context, l Locker, key string, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/balance/repository"
	"github.com/smallbiznis/settlement/internal/balance/service"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db  *gorm.DB
	svc domain.Service
	clk *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	return &fixture{
		db:  db,
		clk: clk,
		svc: service.NewService(service.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: testutil.NewNode(t),
			Repo:  repository.Provide(),
			Clock: clk,
		}),
	}
}

func (f *fixture) inTx(t *testing.T, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return f.db.Transaction(fn)
}

func (f *fixture) credit(t *testing.T, source string, amount int64) {
	t.Helper()
	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		_, err := f.svc.Credit(context.Background(), tx, domain.Movement{
			SellerID: "seller-1", Currency: "NGN", Amount: amount,
			SourceType: domain.SourceTransaction, SourceID: source,
		})
		return err
	}))
}

func (f *fixture) balance(t *testing.T) domain.SellerBalance {
	t.Helper()
	b, err := f.svc.Get(context.Background(), "seller-1", "ngn")
	require.NoError(t, err)
	return b
}

func TestCreditAppliesOncePerSource(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "txn-1", 97500)

	var applied bool
	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		var err error
		applied, err = f.svc.Credit(context.Background(), tx, domain.Movement{
			SellerID: "seller-1", Currency: "NGN", Amount: 97500,
			SourceType: domain.SourceTransaction, SourceID: "txn-1",
		})
		return err
	}))
	require.False(t, applied)
	require.Equal(t, int64(97500), f.balance(t).AvailableBalance)
}

func TestGetUnknownSellerIsZero(t *testing.T) {
	f := newFixture(t)

	b := f.balance(t)
	require.Equal(t, "NGN", b.Currency)
	require.Zero(t, b.AvailableBalance)
	require.Zero(t, b.PendingBalance)
}

func TestReserveRejectsOverdraw(t *testing.T) {
	f := newFixture(t)
	f.credit(t, "txn-1", 1000)

	err := f.inTx(t, func(tx *gorm.DB) error {
		return f.svc.Reserve(context.Background(), tx, domain.Movement{
			SellerID: "seller-1", Currency: "NGN", Amount: 1001,
			SourceType: domain.SourcePayout, SourceID: "po-1",
		})
	})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.Equal(t, int64(1000), f.balance(t).AvailableBalance)
}

func TestReserveReleaseAndCompensate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credit(t, "txn-1", 600)
	f.clk.Advance(time.Minute)
	f.credit(t, "txn-2", 400)

	released := domain.Movement{SellerID: "seller-1", Currency: "NGN", Amount: 500, SourceType: domain.SourcePayout, SourceID: "po-1"}
	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		return f.svc.Reserve(ctx, tx, released)
	}))
	require.Equal(t, int64(500), f.balance(t).PendingBalance)

	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		_, err := f.svc.Release(ctx, tx, released)
		return err
	}))
	b := f.balance(t)
	require.Equal(t, int64(500), b.AvailableBalance)
	require.Zero(t, b.PendingBalance)

	failed := domain.Movement{SellerID: "seller-1", Currency: "NGN", Amount: 300, SourceType: domain.SourcePayout, SourceID: "po-2"}
	var allocations []domain.Allocation
	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		if err := f.svc.Reserve(ctx, tx, failed); err != nil {
			return err
		}
		var err error
		allocations, err = f.svc.AllocateCredits(ctx, tx, "seller-1", "NGN", 300, nil)
		return err
	}))
	require.Len(t, allocations, 1)
	require.Equal(t, "txn-1", allocations[0].TransactionID, "oldest credit is swept first")

	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		_, err := f.svc.Compensate(ctx, tx, failed, allocations)
		return err
	}))
	b = f.balance(t)
	require.Equal(t, int64(500), b.AvailableBalance)
	require.Zero(t, b.PendingBalance)

	eligible, err := f.svc.EligibleForPayout(ctx, "seller-1", "NGN", f.clk.Now())
	require.NoError(t, err)
	require.Equal(t, int64(500), eligible)
}

func TestReverseBeyondAvailableRecordsReceivable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.credit(t, "txn-1", 1000)

	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		return f.svc.Reserve(ctx, tx, domain.Movement{
			SellerID: "seller-1", Currency: "NGN", Amount: 800,
			SourceType: domain.SourcePayout, SourceID: "po-1",
		})
	}))

	var result domain.ReversalResult
	require.NoError(t, f.inTx(t, func(tx *gorm.DB) error {
		var err error
		result, _, err = f.svc.Reverse(ctx, tx, domain.Movement{
			SellerID: "seller-1", Currency: "NGN", Amount: 500,
			SourceType: domain.SourceRefund, SourceID: "rf-1",
		}, "txn-1")
		return err
	}))
	require.Equal(t, int64(200), result.FromAvailable)
	require.Equal(t, int64(300), result.ToReceivable)

	b := f.balance(t)
	require.Zero(t, b.AvailableBalance)
	require.Equal(t, int64(300), b.ReceivableBalance)

	f.credit(t, "txn-2", 1000)
	b = f.balance(t)
	require.Zero(t, b.ReceivableBalance)
	require.Equal(t, int64(700), b.AvailableBalance)

	entries, err := f.svc.Entries(ctx, "seller-1", "NGN", 10)
	require.NoError(t, err)
	kinds := map[domain.EntryKind]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	require.Equal(t, 1, kinds[domain.EntryClawbackRecovery])
	require.Equal(t, 1, kinds[domain.EntryRefundReversal])
}

func TestMovementValidation(t *testing.T) {
	f := newFixture(t)

	err := f.inTx(t, func(tx *gorm.DB) error {
		_, err := f.svc.Credit(context.Background(), tx, domain.Movement{Currency: "NGN", Amount: 1, SourceType: "transaction", SourceID: "x"})
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidSeller)

	_, err = f.svc.Get(context.Background(), "seller-1", "")
	require.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

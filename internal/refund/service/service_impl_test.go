package service_test

import (
	"context"
	"testing"
	"time"

	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/refund/domain"
	"github.com/smallbiznis/settlement/internal/testutil/harness"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(v int64) *int64 { return &v }

func TestFullRefundReversesTheSplit(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))
	e.Clock.Advance(time.Hour)

	r, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, r.Status)
	assert.Equal(t, int64(100_000), r.Amount)
	assert.Equal(t, int64(97_500), r.SellerReversal)
	assert.Equal(t, int64(2_500), r.CommissionReversal)
	assert.Zero(t, r.ReceivableAmount)

	assert.Zero(t, e.SellerBalance(t, "seller-1").AvailableBalance)
	refunded, err := e.Transactions.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txdomain.StatusCompleted, refunded.Status)
	assert.True(t, txn.UpdatedAt.Equal(refunded.UpdatedAt), "the settled transaction row is not rewritten")

	lines, err := e.Ledger.Lines(ctx, ledgerdomain.SourceTypeRefund, r.ID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []ledgerdomain.PostedLine{
		{Account: ledgerdomain.AccountSellerPayable, Direction: ledgerdomain.Debit, Amount: 97_500},
		{Account: ledgerdomain.AccountPlatformRevenue, Direction: ledgerdomain.Debit, Amount: 2_500},
		{Account: ledgerdomain.AccountCashClearing, Direction: ledgerdomain.Credit, Amount: 100_000},
	}, lines)

	_, err = e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID})
	require.ErrorIs(t, err, domain.ErrRefundExceedsOriginal)
}

func TestPartialRefundsNeverExceedOriginal(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))

	first, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID, Amount: amount(40_000)})
	require.NoError(t, err)
	assert.Equal(t, int64(39_000), first.SellerReversal)
	assert.Equal(t, int64(1_000), first.CommissionReversal)

	_, err = e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID, Amount: amount(60_001)})
	require.ErrorIs(t, err, domain.ErrRefundExceedsOriginal)

	rest, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), rest.Amount)
	assert.Equal(t, int64(58_500), rest.SellerReversal)
	assert.Equal(t, int64(1_500), rest.CommissionReversal)

	all, err := e.Refunds.ListByTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Zero(t, e.SellerBalance(t, "seller-1").AvailableBalance)
}

func TestRefundRequestValidation(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	_, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: 99, Amount: amount(0)})
	require.ErrorIs(t, err, domain.ErrInvalidRefundAmount)

	_, err = e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: 99})
	require.ErrorIs(t, err, txdomain.ErrTransactionNotFound)

	processing, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)
	_, err = e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: processing.ID})
	require.ErrorIs(t, err, txdomain.ErrInvalidTransactionState)

	_, err = e.Refunds.ListByTransaction(ctx, 99)
	require.ErrorIs(t, err, txdomain.ErrTransactionNotFound)
}

func TestRejectedRefundFreesTheAmount(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))
	e.Gateway.FailNext(fake.OpRefund, providerdomain.Rejected("fake", "refund window closed"))

	failed, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "refund window closed", *failed.FailureReason)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)

	retried, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, retried.Status)
}

func TestAsyncRefundCompletesOnCallback(t *testing.T) {
	e := harness.New(t)
	e.UsePayment(fake.NewAsyncPayment("fake"))
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))

	r, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID, Amount: amount(10_000)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, r.Status)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance, "reversal waits for completion")

	done, err := e.Refunds.HandleCallback(ctx, providerdomain.Callback{Kind: providerdomain.CallbackRefund, Reference: r.Reference})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.Equal(t, int64(97_500-9_750), e.SellerBalance(t, "seller-1").AvailableBalance)

	again, err := e.Refunds.Verify(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.Equal(t, int64(97_500-9_750), e.SellerBalance(t, "seller-1").AvailableBalance)
}

func TestRefundAfterPayoutBecomesReceivable(t *testing.T) {
	e := harness.New(t)
	e.UsePayout(fake.NewSyncPayout("fake"))
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))

	p, err := e.Payouts.CreatePayout(ctx, payoutdomain.CreateRequest{
		SellerID: "seller-1",
		Currency: "NGN",
		Method:   "bank_transfer",
		Account:  map[string]string{"accountNumber": "0123456789", "bankCode": "058"},
	})
	require.NoError(t, err)
	require.Equal(t, payoutdomain.StatusCompleted, p.Status)

	r, err := e.Refunds.RequestRefund(ctx, domain.Request{TransactionID: txn.ID, Amount: amount(20_000)})
	require.NoError(t, err)
	assert.Equal(t, int64(19_500), r.ReceivableAmount)

	b := e.SellerBalance(t, "seller-1")
	assert.Zero(t, b.AvailableBalance)
	assert.Equal(t, int64(19_500), b.ReceivableBalance)

	entries, err := e.Balance.Entries(ctx, "seller-1", "NGN", 10)
	require.NoError(t, err)
	var kinds []balancedomain.EntryKind
	for _, en := range entries {
		kinds = append(kinds, en.Kind)
	}
	assert.Contains(t, kinds, balancedomain.EntryRefundReversal)
}

package service_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	balancedomain "github.com/smallbiznis/settlement/internal/balance/domain"
	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/currency"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/payout/domain"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/testutil/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bankDetails = map[string]string{"accountNumber": "0123456789", "bankCode": "058"}

func inline(amount *int64) domain.CreateRequest {
	return domain.CreateRequest{
		SellerID: "seller-1",
		Currency: "NGN",
		Amount:   amount,
		Method:   "bank_transfer",
		Account:  bankDetails,
	}
}

func amount(v int64) *int64 { return &v }

func TestRegisterAccountDefaults(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	first, err := e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{
		SellerID: "seller-1", Currency: "ngn", Method: "Bank_Transfer", Details: bankDetails,
	})
	require.NoError(t, err)
	assert.True(t, first.IsDefault, "first account of a currency")
	assert.Equal(t, "bank_transfer", first.Method)
	assert.Equal(t, "NGN", first.Currency)

	second, err := e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{
		SellerID: "seller-1", Currency: "NGN", Method: "mobile_money", Details: map[string]string{"msisdn": "2348000000000"},
	})
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	_, err = e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{SellerID: "seller-1", Currency: "NGN", Method: "cheque", Details: bankDetails})
	require.ErrorIs(t, err, domain.ErrUnsupportedPayoutMethod)
	_, err = e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{SellerID: "seller-1", Currency: "EUR", Method: "bank_transfer", Details: bankDetails})
	require.ErrorIs(t, err, currency.ErrUnsupportedCurrency)
	_, err = e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{SellerID: "seller-1", Currency: "NGN", Method: "bank_transfer"})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)

	accounts, err := e.Payouts.ListAccounts(ctx, "seller-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}

func TestPayoutReservesThenSettlesOnVerify(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))

	p, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, p.Status)
	assert.Equal(t, int64(97_500), p.TotalAmount)
	assert.Equal(t, int64(1_000), p.Fees)
	assert.Equal(t, int64(96_500), p.NetAmount)

	b := e.SellerBalance(t, "seller-1")
	assert.Zero(t, b.AvailableBalance)
	assert.Equal(t, int64(97_500), b.PendingBalance)

	items, err := e.Payouts.Items(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, txn.ID.String(), items[0].TransactionID)
	assert.Equal(t, int64(1_000), items[0].Fee)

	done, err := e.Payouts.Verify(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
	assert.NotNil(t, done.SettledAt)
	assert.Zero(t, e.SellerBalance(t, "seller-1").PendingBalance)

	lines, err := e.Ledger.Lines(ctx, ledgerdomain.SourceTypePayout, p.ID.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []ledgerdomain.PostedLine{
		{Account: ledgerdomain.AccountSellerPayable, Direction: ledgerdomain.Debit, Amount: 97_500},
		{Account: ledgerdomain.AccountCashClearing, Direction: ledgerdomain.Credit, Amount: 96_500},
		{Account: ledgerdomain.AccountFeeRevenue, Direction: ledgerdomain.Credit, Amount: 1_000},
	}, lines)

	payable, err := e.Ledger.AccountBalance(ctx, ledgerdomain.AccountSellerPayable, "NGN")
	require.NoError(t, err)
	assert.Zero(t, payable)
}

func TestPayoutAmountChecks(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	_, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.ErrorIs(t, err, domain.ErrNothingToPay)

	e.Settle(t, harness.Sale("seller-1"))
	_, err = e.Payouts.CreatePayout(ctx, inline(amount(200_000)))
	require.ErrorIs(t, err, balancedomain.ErrInsufficientBalance)

	_, err = e.Payouts.CreatePayout(ctx, inline(amount(900)))
	require.ErrorIs(t, err, domain.ErrInvalidPayoutAmount, "fee would swallow the payout")

	_, err = e.Payouts.CreatePayout(ctx, domain.CreateRequest{SellerID: "seller-1", Currency: "NGN"})
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)
}

func TestTransientFailureSchedulesRetry(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))
	e.Disburser.FailNext(fake.OpExecute, providerdomain.Unavailable("fake", "bank offline"))

	p, err := e.Payouts.CreatePayout(ctx, inline(amount(50_000)))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, p.Status)
	assert.Equal(t, 1, p.RetryCount)
	require.NotNil(t, p.NextAttemptAt)
	assert.Equal(t, harness.Start.Add(time.Minute), p.NextAttemptAt.UTC())

	n, err := e.Payouts.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.Clock.Advance(time.Minute)
	n, err = e.Payouts.RetryDue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.Payouts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Equal(t, 2, e.Disburser.Calls(fake.OpExecute))
}

func TestExecuteTimeoutKeepsReservation(t *testing.T) {
	e := harness.New(t, func(f *config.SettlementFile) {
		f.Payout.CallTimeout = 20 * time.Millisecond
		f.Payout.MaxRetries = 1
	})
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))
	e.Disburser.Block(fake.OpExecute, true)

	p, err := e.Payouts.CreatePayout(ctx, inline(amount(50_000)))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, p.Status, "the bank may have paid")
	assert.Zero(t, p.RetryCount)
	assert.Nil(t, p.NextAttemptAt)
	assert.Equal(t, 1, e.Disburser.Calls(fake.OpExecute))

	b := e.SellerBalance(t, "seller-1")
	assert.Equal(t, int64(47_500), b.AvailableBalance)
	assert.Equal(t, int64(50_000), b.PendingBalance)
}

func TestExhaustedRetriesCompensateBalance(t *testing.T) {
	e := harness.New(t, func(f *config.SettlementFile) { f.Payout.MaxRetries = 2 })
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))
	down := providerdomain.Unavailable("fake", "bank offline")
	e.Disburser.FailNext(fake.OpExecute, down, down)

	p, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, p.Status)

	e.Clock.Advance(time.Hour)
	_, err = e.Payouts.RetryDue(ctx, 10)
	require.NoError(t, err)

	got, err := e.Payouts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "retries exhausted")

	b := e.SellerBalance(t, "seller-1")
	assert.Equal(t, int64(97_500), b.AvailableBalance)
	assert.Zero(t, b.PendingBalance)

	again, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)
	assert.Equal(t, int64(97_500), again.TotalAmount, "compensated credits can be swept again")
}

func TestCancelOnlyPendingPayouts(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))
	e.Disburser.FailNext(fake.OpExecute, providerdomain.Unavailable("fake", "bank offline"))

	p, err := e.Payouts.CreatePayout(ctx, inline(amount(40_000)))
	require.NoError(t, err)
	cancelled, err := e.Payouts.Cancel(ctx, p.ID, "wrong account")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)

	processing, err := e.Payouts.CreatePayout(ctx, inline(amount(40_000)))
	require.NoError(t, err)
	_, err = e.Payouts.Cancel(ctx, processing.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidPayoutState)
}

func TestProviderDeclineOnCallback(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))

	p, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)
	e.Disburser.SetStatus(p.Reference, providerdomain.StatusFailed, "account closed")

	got, err := e.Payouts.HandleCallback(ctx, providerdomain.Callback{Kind: providerdomain.CallbackPayout, Reference: p.Reference})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)

	_, err = e.Payouts.HandleCallback(ctx, providerdomain.Callback{Kind: providerdomain.CallbackPayout, Reference: "PAY-missing"})
	require.ErrorIs(t, err, domain.ErrPayoutNotFound)
}

func TestReconcileProcessingPayouts(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))

	p, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)

	e.Clock.Advance(31 * time.Minute)
	n, err := e.Payouts.ReconcileProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.Payouts.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestAutoPayoutsHonourHoldingPeriodAndOpenPayouts(t *testing.T) {
	e := harness.New(t, func(f *config.SettlementFile) { f.Payout.Policy.MinimumAmount = 10_000 })
	ctx := context.Background()

	_, err := e.Payouts.RegisterAccount(ctx, domain.RegisterAccountRequest{
		SellerID: "seller-1", Currency: "NGN", Method: "bank_transfer", Details: bankDetails, AutoPayoutEnabled: true,
	})
	require.NoError(t, err)
	e.Settle(t, harness.Sale("seller-1"))

	res, err := e.Payouts.RunAutoPayouts(ctx, e.Clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Considered)
	assert.Equal(t, 1, res.Skipped, "credit still inside the holding period")

	e.Clock.Advance(8 * 24 * time.Hour)
	res, err = e.Payouts.RunAutoPayouts(ctx, e.Clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.PayoutIDs, 1)

	list, err := e.Payouts.List(ctx, domain.ListFilter{SellerID: "seller-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Automatic)
	require.NotNil(t, list[0].BatchReference)
	assert.Equal(t, res.BatchReference, *list[0].BatchReference)

	floor := list[0].TotalAmount + 1
	manual := false
	list, err = e.Payouts.List(ctx, domain.ListFilter{SellerID: "seller-1", Automatic: &manual, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = e.Payouts.List(ctx, domain.ListFilter{SellerID: "seller-1", MinAmount: &floor, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)

	res, err = e.Payouts.RunAutoPayouts(ctx, e.Clock.Now(), 10)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Skipped, "a payout is still open")
}

func TestStatementRendersPDF(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	e.Settle(t, harness.Sale("seller-1"))

	p, err := e.Payouts.CreatePayout(ctx, inline(nil))
	require.NoError(t, err)

	pdf, err := e.Payouts.Statement(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = e.Payouts.Statement(ctx, 77)
	require.ErrorIs(t, err, domain.ErrPayoutNotFound)
}

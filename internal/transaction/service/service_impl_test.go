package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/settlement/internal/config"
	"github.com/smallbiznis/settlement/internal/feerule"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	providerdomain "github.com/smallbiznis/settlement/internal/provider/domain"
	"github.com/smallbiznis/settlement/internal/testutil/harness"
	"github.com/smallbiznis/settlement/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestQuotePricesWithoutPersisting(t *testing.T) {
	e := harness.New(t)

	q, err := e.Transactions.Quote(context.Background(), harness.Sale("seller-1"))
	require.NoError(t, err)

	assert.Equal(t, int64(12_500), q.TaxAmount, "VAT 7.5% plus service levy 5%")
	assert.Equal(t, int64(1_600), q.ProviderFee, "card 1.5% + 1.00")
	assert.Equal(t, int64(114_100), q.TotalAmount)
	assert.Equal(t, int64(2_500), q.Split.PlatformCommission.Amount)
	assert.Equal(t, int64(97_500), q.Split.SellerPayout.Amount)
	assert.Equal(t, "fake", q.Provider)

	rows, err := e.Transactions.List(context.Background(), domain.ListFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQuoteRejectsUnknownInputs(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	req := harness.Sale("seller-1")
	req.PaymentMethod = "crypto"
	_, err := e.Transactions.Quote(ctx, req)
	require.ErrorIs(t, err, feerule.ErrUnsupportedPaymentMethod)

	req = harness.Sale("seller-1")
	req.Category = "weapons"
	_, err = e.Transactions.Quote(ctx, req)
	require.ErrorIs(t, err, feerule.ErrUnknownCategory)

	req = harness.Sale("seller-1")
	req.Amount = 0
	_, err = e.Transactions.Quote(ctx, req)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = harness.Sale("seller-1")
	req.Provider = "nowhere"
	_, err = e.Transactions.Quote(ctx, req)
	require.ErrorIs(t, err, providerdomain.ErrProviderNotFound)
}

func TestInitializeMovesToProcessing(t *testing.T) {
	e := harness.New(t)

	txn, err := e.Transactions.Initialize(context.Background(), harness.Sale("seller-1"))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusProcessing, txn.Status)
	assert.True(t, strings.HasPrefix(txn.Reference, "TXN"))
	require.NotNil(t, txn.ExternalReference)
	assert.Equal(t, "fake_"+strings.ToLower(txn.Reference), *txn.ExternalReference)
	assert.Equal(t, harness.Start.Add(30*time.Minute), txn.ExpiresAt.UTC())
	assert.Equal(t, "seller-1", txn.SellerID())
	assert.Equal(t, 1, e.Gateway.Calls(fake.OpInitialize))
}

func TestVerifySettlesExactlyOnce(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	txn := e.Settle(t, harness.Sale("seller-1"))
	require.NotNil(t, txn.CompletedAt)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)

	again, err := e.Transactions.Verify(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, again.Status)
	assert.Equal(t, int64(97_500), e.SellerBalance(t, "seller-1").AvailableBalance)
	assert.Equal(t, 1, e.Gateway.Calls(fake.OpVerify), "terminal records skip the provider")

	lines, err := e.Ledger.Lines(ctx, ledgerdomain.SourceTypeSettlement, txn.ID.String())
	require.NoError(t, err)
	require.Len(t, lines, 5)

	clearing, err := e.Ledger.AccountBalance(ctx, ledgerdomain.AccountCashClearing, "NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(114_100), clearing)
	tax, err := e.Ledger.AccountBalance(ctx, ledgerdomain.AccountTaxPayable, "NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(-12_500), tax)
}

func TestPlatformOnlySaleCreditsNobody(t *testing.T) {
	e := harness.New(t)

	txn := e.Settle(t, harness.Sale(""))
	assert.Equal(t, int64(0), txn.Split().SellerPayout.Amount)
	assert.Equal(t, int64(100_000), txn.Split().PlatformCommission.Amount)

	revenue, err := e.Ledger.AccountBalance(context.Background(), ledgerdomain.AccountPlatformRevenue, "NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(-100_000), revenue)
}

func TestVerifyRecordsProviderFailure(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	txn, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)
	e.Gateway.SetStatus(txn.Reference, providerdomain.StatusFailed, "insufficient funds")

	txn, err = e.Transactions.Verify(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, txn.Status)
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "insufficient funds", *txn.FailureReason)
	assert.Zero(t, e.SellerBalance(t, "seller-1").AvailableBalance)
}

func TestInitializeRetriesUnavailableProviderThenFails(t *testing.T) {
	e := harness.New(t)
	down := providerdomain.Unavailable("fake", "gateway down")
	e.Gateway.FailNext(fake.OpInitialize, down, down, down)

	txn, err := e.Transactions.Initialize(context.Background(), harness.Sale("seller-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, txn.Status)
	assert.Equal(t, 3, e.Gateway.Calls(fake.OpInitialize))
	require.NotNil(t, txn.FailureReason)
	assert.Equal(t, "gateway down", *txn.FailureReason)
}

func TestInitializeRejectionIsNotRetried(t *testing.T) {
	e := harness.New(t)
	e.Gateway.FailNext(fake.OpInitialize, providerdomain.Rejected("fake", "card blocked"))

	txn, err := e.Transactions.Initialize(context.Background(), harness.Sale("seller-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, txn.Status)
	assert.Equal(t, 1, e.Gateway.Calls(fake.OpInitialize))
}

func TestInitializeTimeoutLeavesOutcomeToVerification(t *testing.T) {
	e := harness.New(t, func(f *config.SettlementFile) { f.Payment.CallTimeout = 20 * time.Millisecond })
	e.Gateway.Block(fake.OpInitialize, true)

	txn, err := e.Transactions.Initialize(context.Background(), harness.Sale("seller-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)
	assert.Nil(t, txn.ExternalReference)
	assert.Equal(t, 1, e.Gateway.Calls(fake.OpInitialize), "unknown outcomes are never retried")
}

func TestVerifyExpiresUnpaidPaymentAfterWindow(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	txn, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)
	e.Gateway.SetStatus(txn.Reference, providerdomain.StatusPending, "")

	txn, err = e.Transactions.Verify(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, txn.Status)

	e.Clock.Advance(31 * time.Minute)
	txn, err = e.Transactions.Verify(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, txn.Status)
	assert.NotNil(t, txn.ExpiredAt)
}

// insertPending stores a record that never reached the provider.
func insertPending(t *testing.T, e *harness.Engine) *domain.Transaction {
	t.Helper()
	now := e.Clock.Now()
	txn := &domain.Transaction{
		ID:            e.GenID.Generate(),
		Reference:     "TXN-PENDING",
		Type:          domain.TypePayment,
		Status:        domain.StatusPending,
		Amount:        5_000,
		Currency:      "NGN",
		BaseCurrency:  "NGN",
		PaymentMethod: "card",
		Provider:      "fake",
		Category:      feerule.CategoryGoods,
		TotalAmount:   5_000,
		PayerID:       "buyer-1",
		Charges:       datatypes.NewJSONType(feerule.ItemizedCharges{}),
		Metadata:      datatypes.NewJSONType(map[string]string{}),
		InitiatedAt:   now,
		ExpiresAt:     now.Add(30 * time.Minute),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, e.TxRepo.Insert(context.Background(), e.DB, txn))
	return txn
}

func TestCancelOnlyBeforeProvider(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	pending := insertPending(t, e)
	cancelled, err := e.Transactions.Cancel(ctx, pending.ID, "buyer changed mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.FailureReason)

	_, err = e.Transactions.Cancel(ctx, pending.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransactionState)

	processing, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)
	_, err = e.Transactions.Cancel(ctx, processing.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransactionState)
}

func TestExpireStaleExpiresOnlyOverduePending(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	pending := insertPending(t, e)
	n, err := e.Transactions.ExpireStale(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.Clock.Advance(30 * time.Minute)
	n, err = e.Transactions.ExpireStale(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.Transactions.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, got.Status)
}

func TestReconcileProcessingResolvesStaleRecords(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	txn, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)

	n, err := e.Transactions.ReconcileProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n, "inside the reconcile window")

	e.Clock.Advance(6 * time.Minute)
	n, err = e.Transactions.ReconcileProcessing(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.Transactions.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestHandleCallbackVerifiesWithProvider(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	txn, err := e.Transactions.Initialize(ctx, harness.Sale("seller-1"))
	require.NoError(t, err)
	e.Gateway.SetStatus(txn.Reference, providerdomain.StatusFailed, "stolen card")

	// The callback claims success but the provider's own answer wins.
	got, err := e.Transactions.HandleCallback(ctx, providerdomain.Callback{
		Kind:      providerdomain.CallbackPayment,
		Reference: txn.Reference,
		Status:    providerdomain.StatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)

	_, err = e.Transactions.HandleCallback(ctx, providerdomain.Callback{Kind: providerdomain.CallbackPayment, ExternalReference: "fake_unknown"})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	_, err = e.Transactions.HandleCallback(ctx, providerdomain.Callback{Kind: providerdomain.CallbackRefund, Reference: txn.Reference})
	require.ErrorIs(t, err, providerdomain.ErrInvalidCallback)
}

func TestNotesAppendAfterTerminal(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()
	txn := e.Settle(t, harness.Sale("seller-1"))

	_, err := e.Transactions.AddNote(ctx, txn.ID, "admin:1", "   ")
	require.ErrorIs(t, err, domain.ErrInvalidNote)

	note, err := e.Transactions.AddNote(ctx, txn.ID, "admin:1", "customer called")
	require.NoError(t, err)
	assert.Equal(t, "customer called", note.Body)

	notes, err := e.Transactions.Notes(ctx, txn.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	_, err = e.Transactions.AddNote(ctx, 12345, "", "x")
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestListFiltersByPayeeAndStatus(t *testing.T) {
	e := harness.New(t)
	ctx := context.Background()

	e.Settle(t, harness.Sale("seller-1"))
	_, err := e.Transactions.Initialize(ctx, harness.Sale("seller-2"))
	require.NoError(t, err)

	rows, err := e.Transactions.List(ctx, domain.ListFilter{PayeeID: "seller-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = e.Transactions.List(ctx, domain.ListFilter{Status: domain.StatusProcessing, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "seller-2", rows[0].PayeeID)
}

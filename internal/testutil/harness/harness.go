// Package harness wires the settlement services over an in-memory database and
// scriptable fake providers, the way the fx graph wires them in production.
package harness

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settlement/internal/balance/domain"
	balancerepo "github.com/smallbiznis/settlement/internal/balance/repository"
	balancesvc "github.com/smallbiznis/settlement/internal/balance/service"
	"github.com/smallbiznis/settlement/internal/clock"
	"github.com/smallbiznis/settlement/internal/config"
	ledgerdomain "github.com/smallbiznis/settlement/internal/ledger/domain"
	ledgersvc "github.com/smallbiznis/settlement/internal/ledger/service"
	"github.com/smallbiznis/settlement/internal/lock"
	payoutdomain "github.com/smallbiznis/settlement/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/settlement/internal/payout/repository"
	payoutsvc "github.com/smallbiznis/settlement/internal/payout/service"
	"github.com/smallbiznis/settlement/internal/provider/adapters"
	"github.com/smallbiznis/settlement/internal/provider/adapters/fake"
	"github.com/smallbiznis/settlement/internal/reference"
	refunddomain "github.com/smallbiznis/settlement/internal/refund/domain"
	refundrepo "github.com/smallbiznis/settlement/internal/refund/repository"
	refundsvc "github.com/smallbiznis/settlement/internal/refund/service"
	revsharedomain "github.com/smallbiznis/settlement/internal/revenueshare/domain"
	revsharerepo "github.com/smallbiznis/settlement/internal/revenueshare/repository"
	revsharesvc "github.com/smallbiznis/settlement/internal/revenueshare/service"
	"github.com/smallbiznis/settlement/internal/testutil"
	txdomain "github.com/smallbiznis/settlement/internal/transaction/domain"
	txrepo "github.com/smallbiznis/settlement/internal/transaction/repository"
	txsvc "github.com/smallbiznis/settlement/internal/transaction/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Start is the fake clock's initial time in every harness.
var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type Engine struct {
	DB         *gorm.DB
	GenID      *snowflake.Node
	Clock      *clock.FakeClock
	Settlement *config.SettlementHolder
	Registry   *adapters.Registry
	Gateway    *fake.Payment
	Disburser  *fake.Payout

	TxRepo       txdomain.Repository
	Ledger       ledgerdomain.Service
	Balance      domain.Service
	RevenueShare revsharedomain.Service
	Transactions txdomain.Service
	Refunds      refunddomain.Service
	Payouts      payoutdomain.Service
}

// New builds an engine over the default rule set. Provider retries back off for a
// millisecond so tests stay fast; edits run after that.
func New(t testing.TB, edits ...func(*config.SettlementFile)) *Engine {
	t.Helper()
	fast := func(f *config.SettlementFile) {
		f.Payment.RetryBackoff = time.Millisecond
		f.Payout.RetryBackoff = time.Minute
	}
	holder := testutil.Settlement(t, append([]func(*config.SettlementFile){fast}, edits...)...)

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(Start)
	locker := lock.NewKeyedMutex()
	refs := reference.NewGenerator()

	e := &Engine{
		DB:         db,
		GenID:      node,
		Clock:      clk,
		Settlement: holder,
		Registry:   adapters.NewRegistry(),
		Gateway:    fake.NewPayment("fake"),
		Disburser:  fake.NewPayout("fake"),
		TxRepo:     txrepo.Provide(),
	}
	e.Registry.RegisterPayment(e.Gateway)
	e.Registry.RegisterPayout(e.Disburser)

	e.Ledger = ledgersvc.NewService(ledgersvc.Params{DB: db, Log: log, GenID: node, Clock: clk})
	e.Balance = balancesvc.NewService(balancesvc.Params{DB: db, Log: log, GenID: node, Repo: balancerepo.Provide(), Clock: clk})
	e.RevenueShare = revsharesvc.NewService(revsharesvc.Params{DB: db, Log: log, GenID: node, Repo: revsharerepo.Provide(), Clock: clk})
	e.Transactions = txsvc.NewService(txsvc.Params{
		DB: db, Log: log, GenID: node, Repo: e.TxRepo,
		Settlement: holder, RevShare: e.RevenueShare, Balance: e.Balance, Ledger: e.Ledger,
		Providers: e.Registry, Locker: locker, Refs: refs, Clock: clk,
	})
	e.Refunds = refundsvc.NewService(refundsvc.Params{
		DB: db, Log: log, GenID: node, Repo: refundrepo.Provide(), Transactions: e.TxRepo,
		Settlement: holder, Balance: e.Balance, Ledger: e.Ledger,
		Providers: e.Registry, Locker: locker, Refs: refs, Clock: clk,
	})
	e.Payouts = payoutsvc.NewService(payoutsvc.Params{
		DB: db, Log: log, GenID: node, Repo: payoutrepo.Provide(),
		Settlement: holder, Balance: e.Balance, Ledger: e.Ledger,
		Providers: e.Registry, Locker: locker, Refs: refs, Clock: clk,
	})

	_, err := e.RevenueShare.EnsureDefault(context.Background(), holder.Current().RevenueShare)
	require.NoError(t, err)
	return e
}

// UsePayout swaps the payout adapter registered as "fake".
func (e *Engine) UsePayout(p *fake.Payout) {
	e.Disburser = p
	e.Registry.RegisterPayout(p)
}

// UsePayment swaps the payment adapter registered as "fake".
func (e *Engine) UsePayment(p *fake.Payment) {
	e.Gateway = p
	e.Registry.RegisterPayment(p)
}

// Sale is the reference request: 1,000.00 NGN of services paid by card.
func Sale(payee string) txdomain.InitializeRequest {
	return txdomain.InitializeRequest{
		OrderID:       "order-1",
		Amount:        100_000,
		Currency:      "NGN",
		PaymentMethod: "card",
		Category:      "services",
		PayerID:       "buyer-1",
		PayeeID:       payee,
	}
}

// Settle initializes req and verifies it to completion.
func (e *Engine) Settle(t testing.TB, req txdomain.InitializeRequest) *txdomain.Transaction {
	t.Helper()
	ctx := context.Background()
	txn, err := e.Transactions.Initialize(ctx, req)
	require.NoError(t, err)
	txn, err = e.Transactions.Verify(ctx, txn.ID)
	require.NoError(t, err)
	require.Equal(t, txdomain.StatusCompleted, txn.Status)
	return txn
}

func (e *Engine) SellerBalance(t testing.TB, seller string) domain.SellerBalance {
	t.Helper()
	b, err := e.Balance.Get(context.Background(), seller, "NGN")
	require.NoError(t, err)
	return b
}

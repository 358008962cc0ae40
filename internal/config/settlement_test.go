package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/feerule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultSettlementBuilds(t *testing.T) {
	s, err := DefaultSettlementFile().Build(1, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "NGN", s.Rates.Base())
	assert.Equal(t, 30*time.Minute, s.Payment.Expiry)
	assert.Equal(t, 3, s.Payment.MaxProviderAttempts)
	assert.Equal(t, "default", s.RevenueShare.Name)
	assert.Equal(t, "2.5", s.RevenueShare.PlatformCommissionPercentage.String())

	charges, err := s.Rules.Evaluate(100_000, feerule.CategoryServices, feerule.Context{Currency: "NGN", PaymentMethod: "card"})
	require.NoError(t, err)
	totals := charges.Totals()
	assert.Equal(t, int64(12_500), totals.Taxes)
	assert.Equal(t, int64(1_600), totals.Fees)

	fee, err := s.Payout.Fees.Compute("bank_transfer", 750_000)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000), fee)
}

func TestBuildCollectsErrors(t *testing.T) {
	f := DefaultSettlementFile()
	f.Rules = append(f.Rules, RuleFile{Name: "Levy", Kind: "percentage", Rate: "abc", AppliesTo: []string{"goods"}})
	f.PaymentMethods = append(f.PaymentMethods, MethodFeeFile{Method: "card", Currency: "EUR", Percentage: "1"})

	_, err := f.Build(1, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decimal")
	assert.ErrorIs(t, err, currency.ErrUnsupportedCurrency)
}

func TestBuildRejectsUnknownCategory(t *testing.T) {
	f := DefaultSettlementFile()
	f.Rules[0].AppliesTo = []string{"gods"}

	_, err := f.Build(1, time.Now())
	assert.ErrorIs(t, err, feerule.ErrUnknownCategory)
}

func TestBuildRejectsOverlappingPriority(t *testing.T) {
	f := DefaultSettlementFile()
	f.Rules[1].Priority = f.Rules[0].Priority

	_, err := f.Build(1, time.Now())
	assert.ErrorIs(t, err, feerule.ErrAmbiguousRules)
}

const settlementYAML = `settlement:
  baseCurrency: USD
  currencies:
    - code: USD
      rateToBase: "1"
    - code: JPY
      rateToBase: "0.0067"
      minorUnits: 0
  rules:
    - name: Sales Tax
      kind: percentage
      rate: "8.25"
      priority: 1
      appliesTo: [goods, digital]
  paymentMethods:
    - method: card
      currency: USD
      provider: gateway
      percentage: "2.9"
      fixed: 30
  payment:
    expiry: 15m
    maxProviderAttempts: 2
  payout:
    methods:
      - method: bank_transfer
        fixed: 25
    policy:
      autoPayoutEnabled: false
      frequency: daily
    maxRetries: 2
  revenueShare:
    name: marketplace
    platformCommissionPercentage: "10"
    minimumCommission: 50
    userTypeRates:
      agent:
        percentage: "5"
        minimumCommission: 20
`

func TestSettlementHolderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.yml")
	require.NoError(t, os.WriteFile(path, []byte(settlementYAML), 0o600))

	holder, err := NewSettlementHolder(path, zap.NewNop())
	require.NoError(t, err)

	s := holder.Current()
	require.NotNil(t, s)
	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, "USD", s.Rates.Base())
	assert.Equal(t, 15*time.Minute, s.Payment.Expiry)
	assert.Equal(t, 2, s.Payment.MaxProviderAttempts)
	assert.Equal(t, 2, s.Payout.MaxRetries)
	assert.False(t, s.Payout.Policy.AutoPayoutEnabled)
	assert.Equal(t, "marketplace", s.RevenueShare.Name)
	assert.Equal(t, int64(20), s.RevenueShare.UserTypeRates["agent"].MinimumCommission)

	base, err := s.Rates.ToBase(10_000, "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(6_700), base)

	fee, err := s.Rules.MethodFee("card", "USD")
	require.NoError(t, err)
	assert.Equal(t, "gateway", fee.Provider)
}

func TestSettlementHolderRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.yml")
	bad := `settlement:
  baseCurrency: USD
  currencies:
    - code: USD
      rateToBase: "2"
`
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))

	_, err := NewSettlementHolder(path, zap.NewNop())
	assert.ErrorIs(t, err, currency.ErrInvalidRateTable)
}

func TestStaticHolderNeverReloads(t *testing.T) {
	holder, err := NewStaticSettlementHolder(DefaultSettlementFile())
	require.NoError(t, err)
	first := holder.Current()
	assert.Same(t, first, holder.Current())
}

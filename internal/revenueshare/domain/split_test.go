package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func testConfig() Configuration {
	return Configuration{
		ID:                           1,
		Name:                         "default",
		Version:                      3,
		PlatformCommissionPercentage: decimal.RequireFromString("2.5"),
		UserTypeRates: datatypes.NewJSONType(UserTypeRates{
			"agent": {Percentage: decimal.RequireFromString("1"), Fixed: 100, MinimumCommission: 2_000},
		}),
	}
}

func TestSplitBaseCommission(t *testing.T) {
	snap, err := Split(100_000, SellerContext{SellerID: "seller-1"}, testConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2_500), snap.PlatformCommission.Amount)
	assert.Equal(t, int64(97_500), snap.SellerPayout.Amount)
	assert.Equal(t, "seller-1", snap.SellerPayout.RecipientID)
	assert.True(t, decimal.RequireFromString("97.5").Equal(snap.SellerPayout.Percentage))
	assert.Equal(t, 3, snap.ConfigurationVersion)
}

func TestSplitUserTypeOverrideAndSellerBorneFees(t *testing.T) {
	fees := []AdditionalFee{
		{Name: "Withholding", Type: "tax", Amount: 500},
		{Name: "Zero", Type: "fee", Amount: 0},
	}
	snap, err := Split(100_000, SellerContext{SellerID: "s", UserType: "agent"}, testConfig(), fees)
	require.NoError(t, err)

	// 1% + 100 = 1100 lifted to the role minimum.
	assert.Equal(t, int64(2_000), snap.PlatformCommission.Amount)
	assert.Equal(t, int64(97_500), snap.SellerPayout.Amount)
	require.Len(t, snap.AdditionalFees, 1)
	assert.Equal(t, int64(100_000), snap.PlatformCommission.Amount+snap.SellerPayout.Amount+snap.AdditionalFeesTotal())
}

func TestSplitRejectsCommissionAboveAmount(t *testing.T) {
	cfg := testConfig()
	cfg.MinimumCommission = 5_000
	_, err := Split(1_000, SellerContext{SellerID: "s"}, cfg, nil)
	require.ErrorIs(t, err, ErrInvalidSplitConfiguration)

	_, err = Split(0, SellerContext{}, cfg, nil)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPlatformOnlyKeepsEverythingButFees(t *testing.T) {
	snap, err := PlatformOnly(10_000, testConfig(), []AdditionalFee{{Name: "VAT", Type: "tax", Amount: 750}})
	require.NoError(t, err)
	assert.Equal(t, int64(9_250), snap.PlatformCommission.Amount)
	assert.Zero(t, snap.SellerPayout.Amount)
}

func TestReversePartialThenFinal(t *testing.T) {
	snap := Snapshot{
		PlatformCommission: Share{Amount: 2_500},
		SellerPayout:       Share{Amount: 97_000},
		AdditionalFees:     []AdditionalFee{{Amount: 500}},
	}

	first, err := Reverse(snap, 100_000, 40_000, Reversal{})
	require.NoError(t, err)
	assert.Equal(t, Reversal{SellerPayout: 38_800, Commission: 1_000, Fees: 200}, first)

	last, err := Reverse(snap, 100_000, 60_000, first)
	require.NoError(t, err)
	assert.Equal(t, Reversal{SellerPayout: 58_200, Commission: 1_500, Fees: 300}, last)

	_, err = Reverse(snap, 100_000, 1, Reversal{SellerPayout: 97_000, Commission: 2_500, Fees: 500})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestValidateConfiguration(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	cfg.PlatformCommissionPercentage = decimal.RequireFromString("100.5")
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)

	cfg = testConfig()
	cfg.Name = " "
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfiguration)
}

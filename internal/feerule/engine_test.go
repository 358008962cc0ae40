package feerule

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func nigerianRules() []Rule {
	return []Rule{
		{
			Name:      "VAT",
			Type:      RuleTypeTax,
			Kind:      KindPercentage,
			Rate:      decimal.RequireFromString("7.5"),
			AppliesTo: Categories(),
			Priority:  10,
		},
		{
			Name:      "ServiceTax",
			Type:      RuleTypeTax,
			Kind:      KindPercentage,
			Rate:      decimal.NewFromInt(5),
			Threshold: int64Ptr(25_000),
			AppliesTo: []Category{CategoryServices, CategoryJobs},
			Priority:  20,
		},
	}
}

func cardFee() MethodFee {
	return MethodFee{
		Method:     "card",
		Currency:   "NGN",
		Percentage: decimal.RequireFromString("1.5"),
		Fixed:      100,
		MaxFee:     int64Ptr(2_000),
	}
}

func TestEvaluateCanonicalServicesScenario(t *testing.T) {
	engine, err := NewEngine(nigerianRules(), []MethodFee{cardFee()})
	require.NoError(t, err)

	charges, err := engine.Evaluate(100_000, CategoryServices, Context{Currency: "NGN", PaymentMethod: "card"})
	require.NoError(t, err)

	require.Len(t, charges.Taxes, 2)
	assert.Equal(t, "vat", charges.Taxes[0].RuleID)
	assert.Equal(t, int64(7_500), charges.Taxes[0].Amount)
	assert.Equal(t, "ServiceTax", charges.Taxes[1].Name)
	assert.Equal(t, int64(5_000), charges.Taxes[1].Amount)

	require.Len(t, charges.Fees, 1)
	assert.Equal(t, int64(1_600), charges.Fees[0].Amount)

	totals := charges.Totals()
	assert.Equal(t, int64(14_100), totals.PayerCharges)
	assert.Equal(t, int64(0), totals.SellerCharges)
}

func TestEvaluateBelowThresholdEmitsNoLine(t *testing.T) {
	engine, err := NewEngine(nigerianRules(), nil)
	require.NoError(t, err)

	charges, err := engine.Evaluate(24_999, CategoryServices, Context{})
	require.NoError(t, err)
	require.Len(t, charges.Taxes, 1)
	assert.Equal(t, "vat", charges.Taxes[0].RuleID)

	charges, err = engine.Evaluate(25_000, CategoryServices, Context{})
	require.NoError(t, err)
	assert.Len(t, charges.Taxes, 2)
}

func TestEvaluateOmitsZeroLines(t *testing.T) {
	engine, err := NewEngine([]Rule{{
		Name:      "Levy",
		Kind:      KindPercentage,
		Rate:      decimal.RequireFromString("0.1"),
		AppliesTo: []Category{CategoryGoods},
	}}, nil)
	require.NoError(t, err)

	charges, err := engine.Evaluate(4, CategoryGoods, Context{})
	require.NoError(t, err)
	assert.Empty(t, charges.Taxes)
	assert.Empty(t, charges.Fees)
}

func TestEvaluateOrdersByPriority(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{Name: "Second", Kind: KindFixed, Rate: decimal.NewFromInt(20), AppliesTo: []Category{CategoryFood}, Priority: 5},
		{Name: "First", Kind: KindFixed, Rate: decimal.NewFromInt(10), AppliesTo: []Category{CategoryFood}, Priority: 1},
	}, nil)
	require.NoError(t, err)

	charges, err := engine.Evaluate(1_000, CategoryFood, Context{})
	require.NoError(t, err)
	require.Len(t, charges.Taxes, 2)
	assert.Equal(t, "first", charges.Taxes[0].RuleID)
	assert.Equal(t, int64(10), charges.Taxes[0].Amount)
	assert.Equal(t, "second", charges.Taxes[1].RuleID)
}

func TestTieredRuleIsGraduated(t *testing.T) {
	engine, err := NewEngine([]Rule{{
		Name:      "Stamp duty",
		Kind:      KindTiered,
		AppliesTo: []Category{CategoryProperty},
		Bands: []Band{
			{UpTo: int64Ptr(10_000), Rate: decimal.Zero},
			{UpTo: int64Ptr(50_000), Rate: decimal.NewFromInt(1), Flat: 50},
			{Rate: decimal.NewFromInt(2)},
		},
	}}, nil)
	require.NoError(t, err)

	charges, err := engine.Evaluate(8_000, CategoryProperty, Context{})
	require.NoError(t, err)
	assert.Empty(t, charges.Taxes)

	// 0 + (40,000 * 1% + 50) + 50,000 * 2% = 450 + 1,000
	charges, err = engine.Evaluate(100_000, CategoryProperty, Context{})
	require.NoError(t, err)
	require.Len(t, charges.Taxes, 1)
	assert.Equal(t, int64(1_450), charges.Taxes[0].Amount)
}

func TestMethodChargeClampsAfterSum(t *testing.T) {
	fee := cardFee()
	fee.MinFee = int64Ptr(150)
	engine, err := NewEngine(nil, []MethodFee{fee})
	require.NoError(t, err)

	line, err := engine.MethodCharge("CARD", "ngn", 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), line.Amount)

	// 1,000 * 1.5% + 100 = 115, raised to the minimum
	line, err = engine.MethodCharge("card", "NGN", 1_000)
	require.NoError(t, err)
	assert.Equal(t, int64(150), line.Amount)
}

func TestUnsupportedPaymentMethodDoesNotDefault(t *testing.T) {
	engine, err := NewEngine(nigerianRules(), []MethodFee{cardFee()})
	require.NoError(t, err)

	_, err = engine.Evaluate(10_000, CategoryGoods, Context{Currency: "USD", PaymentMethod: "card"})
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)

	_, err = engine.Evaluate(10_000, CategoryGoods, Context{Currency: "NGN", PaymentMethod: "ussd"})
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
}

func TestNewEngineRejectsAmbiguousPriority(t *testing.T) {
	_, err := NewEngine([]Rule{
		{Name: "A", Kind: KindFixed, Rate: decimal.NewFromInt(1), AppliesTo: []Category{CategoryGoods, CategoryFood}, Priority: 1},
		{Name: "B", Kind: KindFixed, Rate: decimal.NewFromInt(1), AppliesTo: []Category{CategoryFood}, Priority: 1},
	}, nil)
	assert.ErrorIs(t, err, ErrAmbiguousRules)

	_, err = NewEngine([]Rule{
		{Name: "A", Kind: KindFixed, Rate: decimal.NewFromInt(1), AppliesTo: []Category{CategoryGoods}, Priority: 1},
		{Name: "B", Kind: KindFixed, Rate: decimal.NewFromInt(1), AppliesTo: []Category{CategoryFood}, Priority: 1},
	}, nil)
	assert.NoError(t, err)
}

func TestNewEngineRejectsInvalidRules(t *testing.T) {
	cases := map[string]Rule{
		"unknown category": {Name: "X", Kind: KindFixed, AppliesTo: []Category{"furniture"}},
		"no category":      {Name: "X", Kind: KindFixed},
		"unknown kind":     {Name: "X", Kind: "compound", AppliesTo: []Category{CategoryGoods}},
		"negative rate":    {Name: "X", Kind: KindPercentage, Rate: decimal.NewFromInt(-1), AppliesTo: []Category{CategoryGoods}},
		"no bands":         {Name: "X", Kind: KindTiered, AppliesTo: []Category{CategoryGoods}},
		"unsorted bands": {Name: "X", Kind: KindTiered, AppliesTo: []Category{CategoryGoods}, Bands: []Band{
			{UpTo: int64Ptr(100)}, {UpTo: int64Ptr(50)},
		}},
		"missing name": {Kind: KindFixed, AppliesTo: []Category{CategoryGoods}},
	}
	for name, rule := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewEngine([]Rule{rule}, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Services ")
	require.NoError(t, err)
	assert.Equal(t, CategoryServices, c)

	_, err = ParseCategory("weapons")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSellerBorneCharges(t *testing.T) {
	engine, err := NewEngine([]Rule{
		{Name: "Listing fee", Type: RuleTypeFee, Kind: KindFixed, Rate: decimal.NewFromInt(300), AppliesTo: []Category{CategoryGoods}, Bearer: BearerSeller},
	}, nil)
	require.NoError(t, err)

	charges, err := engine.Evaluate(10_000, CategoryGoods, Context{})
	require.NoError(t, err)
	borne := charges.SellerBorne()
	require.Len(t, borne, 1)
	assert.Equal(t, int64(300), borne[0].Amount)
	assert.Equal(t, int64(300), charges.Totals().SellerCharges)
}

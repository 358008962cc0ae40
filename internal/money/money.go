// Package money holds minor-unit arithmetic shared by the settlement engine.
// Amounts are int64 minor units; rates are decimals and never touch float64.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Percent returns amount * pct / 100 rounded half away from zero to a whole minor unit.
func Percent(amount int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred).Round(0).IntPart()
}

// PercentExact is Percent without rounding, for callers that sum before rounding once.
func PercentExact(amount int64, pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(pct).Div(hundred)
}

// ProRata returns round(share * part / whole). whole must be positive.
func ProRata(share, part, whole int64) int64 {
	if whole <= 0 {
		return 0
	}
	return decimal.NewFromInt(share).
		Mul(decimal.NewFromInt(part)).
		Div(decimal.NewFromInt(whole)).
		Round(0).
		IntPart()
}

// ShareOf returns part as a percentage of whole with four decimal places.
func ShareOf(part, whole int64) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).Mul(hundred).Div(decimal.NewFromInt(whole)).Round(4)
}

// Format renders minor units as a display decimal, e.g. 114100 with 2 units -> "1141.00".
func Format(amount int64, minorUnits int32) string {
	return decimal.New(amount, -minorUnits).StringFixed(minorUnits)
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrency = errors.New("unsupported_currency")
	ErrInvalidRateTable    = errors.New("invalid_rate_table")
)

const defaultMinorUnits int32 = 2

// Currency is one row of the conversion table.
type Currency struct {
	Code       string
	RateToBase decimal.Decimal
	MinorUnits int32
}

// RateTable converts minor-unit amounts into the base currency. It is immutable after construction.
type RateTable struct {
	base       string
	currencies map[string]Currency
}

// NewRateTable validates and indexes the supplied rates. The base currency is added at rate 1
// when the caller omits it.
func NewRateTable(base string, currencies []Currency, baseMinorUnits int32) (*RateTable, error) {
	base = Normalize(base)
	if base == "" {
		return nil, fmt.Errorf("%w: base currency is required", ErrInvalidRateTable)
	}
	if baseMinorUnits < 0 {
		return nil, fmt.Errorf("%w: negative minor units for %s", ErrInvalidRateTable, base)
	}

	table := &RateTable{base: base, currencies: make(map[string]Currency, len(currencies)+1)}
	for _, c := range currencies {
		code := Normalize(c.Code)
		if code == "" {
			return nil, fmt.Errorf("%w: empty currency code", ErrInvalidRateTable)
		}
		if _, dup := table.currencies[code]; dup {
			return nil, fmt.Errorf("%w: duplicate currency %s", ErrInvalidRateTable, code)
		}
		if !c.RateToBase.IsPositive() {
			return nil, fmt.Errorf("%w: rate for %s must be positive", ErrInvalidRateTable, code)
		}
		if c.MinorUnits < 0 {
			return nil, fmt.Errorf("%w: negative minor units for %s", ErrInvalidRateTable, code)
		}
		if code == base && !c.RateToBase.Equal(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("%w: base currency %s must convert at rate 1", ErrInvalidRateTable, code)
		}
		c.Code = code
		table.currencies[code] = c
	}
	if _, ok := table.currencies[base]; !ok {
		minor := baseMinorUnits
		if minor == 0 {
			minor = defaultMinorUnits
		}
		table.currencies[base] = Currency{Code: base, RateToBase: decimal.NewFromInt(1), MinorUnits: minor}
	}
	return table, nil
}

func (t *RateTable) Base() string { return t.base }

func (t *RateTable) Supports(code string) bool {
	_, ok := t.currencies[Normalize(code)]
	return ok
}

func (t *RateTable) MinorUnits(code string) (int32, error) {
	c, ok := t.currencies[Normalize(code)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return c.MinorUnits, nil
}

// ToBase converts amount (minor units of code) to minor units of the base currency.
// The only rounding is to the base currency's minor unit, half away from zero.
func (t *RateTable) ToBase(amount int64, code string) (int64, error) {
	c, ok := t.currencies[Normalize(code)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	if c.Code == t.base {
		return amount, nil
	}
	baseMinor := t.currencies[t.base].MinorUnits
	converted := decimal.NewFromInt(amount).
		Mul(c.RateToBase).
		Shift(baseMinor - c.MinorUnits).
		Round(0)
	return converted.IntPart(), nil
}

func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

package feerule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/settlement/internal/currency"
	"github.com/smallbiznis/settlement/internal/money"
)

// MethodFee is the processing fee schedule for one payment method in one currency.
type MethodFee struct {
	Method     string
	Currency   string
	Provider   string
	Percentage decimal.Decimal
	Fixed      int64
	MinFee     *int64
	MaxFee     *int64
}

// Charge is one itemized line produced by the engine.
type Charge struct {
	RuleID string          `json:"ruleId"`
	Name   string          `json:"name"`
	Type   RuleType        `json:"type"`
	Kind   Kind            `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Amount int64           `json:"amount"`
	Bearer Bearer          `json:"bearer"`
	Method string          `json:"method,omitempty"`
}

type ItemizedCharges struct {
	Taxes []Charge `json:"taxes"`
	Fees  []Charge `json:"fees"`
}

// Context carries the optional request attributes rules may depend on.
type Context struct {
	Currency      string
	PaymentMethod string
}

// Engine evaluates a validated, priority-ordered rule set. It holds no mutable state.
type Engine struct {
	rules      []Rule
	methodFees map[methodKey]MethodFee
}

type methodKey struct {
	method   string
	currency string
}

func NewEngine(rules []Rule, methodFees []MethodFee) (*Engine, error) {
	normalized := make([]Rule, 0, len(rules))
	ids := map[string]struct{}{}
	for _, r := range rules {
		nr, err := normalizeRule(r)
		if err != nil {
			return nil, err
		}
		if _, dup := ids[nr.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %s", ErrInvalidRule, nr.ID)
		}
		ids[nr.ID] = struct{}{}
		normalized = append(normalized, nr)
	}
	if err := checkOverlap(normalized); err != nil {
		return nil, err
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Priority < normalized[j].Priority
	})

	fees := make(map[methodKey]MethodFee, len(methodFees))
	for _, f := range methodFees {
		key := methodKey{method: normalizeMethod(f.Method), currency: currency.Normalize(f.Currency)}
		if key.method == "" || key.currency == "" {
			return nil, fmt.Errorf("%w: payment method fee needs method and currency", ErrInvalidRule)
		}
		if _, dup := fees[key]; dup {
			return nil, fmt.Errorf("%w: duplicate fee for %s/%s", ErrInvalidRule, key.method, key.currency)
		}
		if f.Percentage.IsNegative() || f.Fixed < 0 {
			return nil, fmt.Errorf("%w: fee for %s/%s is negative", ErrInvalidRule, key.method, key.currency)
		}
		if f.MinFee != nil && f.MaxFee != nil && *f.MinFee > *f.MaxFee {
			return nil, fmt.Errorf("%w: fee for %s/%s has min above max", ErrInvalidRule, key.method, key.currency)
		}
		f.Method = key.method
		f.Currency = key.currency
		fees[key] = f
	}

	return &Engine{rules: normalized, methodFees: fees}, nil
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate walks the rules in ascending priority and itemizes every non-zero charge.
// When ctx names a payment method its processing fee is appended to the fees.
func (e *Engine) Evaluate(amount int64, category Category, ctx Context) (ItemizedCharges, error) {
	if amount <= 0 {
		return ItemizedCharges{}, ErrInvalidAmount
	}
	if _, ok := knownCategories[category]; !ok {
		return ItemizedCharges{}, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	result := ItemizedCharges{Taxes: []Charge{}, Fees: []Charge{}}
	for _, r := range e.rules {
		if !r.appliesTo(category) || !r.meetsThreshold(amount) {
			continue
		}
		value := ruleCharge(r, amount)
		if value == 0 {
			continue
		}
		line := Charge{
			RuleID: r.ID,
			Name:   r.Name,
			Type:   r.Type,
			Kind:   r.Kind,
			Rate:   r.Rate,
			Amount: value,
			Bearer: r.Bearer,
		}
		if r.Type == RuleTypeTax {
			result.Taxes = append(result.Taxes, line)
		} else {
			result.Fees = append(result.Fees, line)
		}
	}

	if strings.TrimSpace(ctx.PaymentMethod) != "" {
		line, err := e.MethodCharge(ctx.PaymentMethod, ctx.Currency, amount)
		if err != nil {
			return ItemizedCharges{}, err
		}
		if line.Amount > 0 {
			result.Fees = append(result.Fees, line)
		}
	}
	return result, nil
}

// MethodFee looks up the fee schedule for a method in a currency.
func (e *Engine) MethodFee(method, cur string) (MethodFee, error) {
	key := methodKey{method: normalizeMethod(method), currency: currency.Normalize(cur)}
	f, ok := e.methodFees[key]
	if !ok {
		return MethodFee{}, fmt.Errorf("%w: %s in %s", ErrUnsupportedPaymentMethod, key.method, key.currency)
	}
	return f, nil
}

// MethodCharge computes percentage+fixed and only then clamps to [min, max].
func (e *Engine) MethodCharge(method, cur string, amount int64) (Charge, error) {
	f, err := e.MethodFee(method, cur)
	if err != nil {
		return Charge{}, err
	}
	fee := money.Percent(amount, f.Percentage) + f.Fixed
	if f.MinFee != nil && fee < *f.MinFee {
		fee = *f.MinFee
	}
	if f.MaxFee != nil && fee > *f.MaxFee {
		fee = *f.MaxFee
	}
	return Charge{
		RuleID: "method:" + f.Method,
		Name:   f.Method + " processing fee",
		Type:   RuleTypeFee,
		Kind:   KindPercentage,
		Rate:   f.Percentage,
		Amount: fee,
		Bearer: BearerPayer,
		Method: f.Method,
	}, nil
}

func ruleCharge(r Rule, amount int64) int64 {
	switch r.Kind {
	case KindPercentage:
		return money.Percent(amount, r.Rate)
	case KindFixed:
		return r.Rate.Round(0).IntPart()
	case KindTiered:
		return tieredCharge(r.Bands, amount)
	default:
		return 0
	}
}

// tieredCharge is graduated: each band charges its rate on the slice of amount that
// falls inside it, plus its flat component once entered. The sum is rounded once.
func tieredCharge(bands []Band, amount int64) int64 {
	total := decimal.Zero
	var lower int64
	for _, b := range bands {
		if amount <= lower {
			break
		}
		upper := amount
		if b.UpTo != nil && *b.UpTo < amount {
			upper = *b.UpTo
		}
		total = total.Add(money.PercentExact(upper-lower, b.Rate)).Add(decimal.NewFromInt(b.Flat))
		if b.UpTo == nil {
			break
		}
		lower = *b.UpTo
	}
	return total.Round(0).IntPart()
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

// Totals splits the itemized lines by bearer and type.
type Totals struct {
	Taxes         int64
	Fees          int64
	PayerCharges  int64
	SellerCharges int64
}

func (c ItemizedCharges) Totals() Totals {
	var t Totals
	for _, line := range c.Taxes {
		t.Taxes += line.Amount
		t.add(line)
	}
	for _, line := range c.Fees {
		t.Fees += line.Amount
		t.add(line)
	}
	return t
}

func (t *Totals) add(line Charge) {
	if line.Bearer == BearerSeller {
		t.SellerCharges += line.Amount
		return
	}
	t.PayerCharges += line.Amount
}

// SellerBorne returns the lines deducted from the seller share.
func (c ItemizedCharges) SellerBorne() []Charge {
	var out []Charge
	for _, line := range append(append([]Charge{}, c.Taxes...), c.Fees...) {
		if line.Bearer == BearerSeller {
			out = append(out, line)
		}
	}
	return out
}

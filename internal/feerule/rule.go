package feerule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

type RuleType string

const (
	RuleTypeTax RuleType = "tax"
	RuleTypeFee RuleType = "fee"
)

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
	KindTiered     Kind = "tiered"
)

// Bearer says who pays a charge. Payer charges are surcharges on top of the amount;
// seller charges come out of the seller's share.
type Bearer string

const (
	BearerPayer  Bearer = "payer"
	BearerSeller Bearer = "seller"
)

// Band is one bracket of a tiered rule. UpTo is the inclusive upper bound in minor
// units; nil means unbounded and is only allowed on the last band.
type Band struct {
	UpTo *int64
	Rate decimal.Decimal
	Flat int64
}

// Rule is one configured tax or fee. For fixed rules Rate holds the charge in minor units.
type Rule struct {
	ID        string
	Name      string
	Type      RuleType
	Kind      Kind
	Rate      decimal.Decimal
	Threshold *int64
	AppliesTo []Category
	Priority  int
	Bands     []Band
	Bearer    Bearer
}

func (r Rule) appliesTo(category Category) bool {
	for _, c := range r.AppliesTo {
		if c == category {
			return true
		}
	}
	return false
}

func (r Rule) meetsThreshold(amount int64) bool {
	return r.Threshold == nil || amount >= *r.Threshold
}

func normalizeRule(r Rule) (Rule, error) {
	r.AppliesTo = append([]Category(nil), r.AppliesTo...)
	r.Bands = append([]Band(nil), r.Bands...)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return Rule{}, fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		r.ID = slug.Make(r.Name)
	}
	if r.Type == "" {
		r.Type = RuleTypeTax
	}
	switch r.Type {
	case RuleTypeTax, RuleTypeFee:
	default:
		return Rule{}, fmt.Errorf("%w: %s has unknown type %q", ErrInvalidRule, r.ID, r.Type)
	}
	if r.Bearer == "" {
		r.Bearer = BearerPayer
	}
	switch r.Bearer {
	case BearerPayer, BearerSeller:
	default:
		return Rule{}, fmt.Errorf("%w: %s has unknown bearer %q", ErrInvalidRule, r.ID, r.Bearer)
	}
	if len(r.AppliesTo) == 0 {
		return Rule{}, fmt.Errorf("%w: %s applies to no category", ErrInvalidRule, r.ID)
	}
	seen := map[Category]struct{}{}
	for i, c := range r.AppliesTo {
		parsed, err := ParseCategory(string(c))
		if err != nil {
			return Rule{}, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		r.AppliesTo[i] = parsed
		seen[parsed] = struct{}{}
	}
	if len(seen) != len(r.AppliesTo) {
		return Rule{}, fmt.Errorf("%w: %s lists a category twice", ErrInvalidRule, r.ID)
	}
	if r.Threshold != nil && *r.Threshold < 0 {
		return Rule{}, fmt.Errorf("%w: %s has a negative threshold", ErrInvalidRule, r.ID)
	}

	switch r.Kind {
	case KindPercentage, KindFixed:
		if r.Rate.IsNegative() {
			return Rule{}, fmt.Errorf("%w: %s has a negative rate", ErrInvalidRule, r.ID)
		}
		if len(r.Bands) > 0 {
			return Rule{}, fmt.Errorf("%w: %s declares bands but is not tiered", ErrInvalidRule, r.ID)
		}
	case KindTiered:
		if err := validateBands(r.ID, r.Bands); err != nil {
			return Rule{}, err
		}
	default:
		return Rule{}, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidRule, r.ID, r.Kind)
	}
	return r, nil
}

func validateBands(id string, bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: tiered rule %s has no bands", ErrInvalidRule, id)
	}
	var prev int64
	for i, b := range bands {
		if b.Rate.IsNegative() || b.Flat < 0 {
			return fmt.Errorf("%w: tiered rule %s band %d is negative", ErrInvalidRule, id, i)
		}
		if b.UpTo == nil {
			if i != len(bands)-1 {
				return fmt.Errorf("%w: tiered rule %s has an unbounded band before the last", ErrInvalidRule, id)
			}
			continue
		}
		if *b.UpTo <= prev {
			return fmt.Errorf("%w: tiered rule %s bands must ascend", ErrInvalidRule, id)
		}
		prev = *b.UpTo
	}
	return nil
}

// checkOverlap rejects rules that share a priority and a category: their relative
// order would otherwise be undefined.
func checkOverlap(rules []Rule) error {
	byPriority := map[int][]Rule{}
	for _, r := range rules {
		byPriority[r.Priority] = append(byPriority[r.Priority], r)
	}
	priorities := make([]int, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	for _, p := range priorities {
		group := byPriority[p]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				for _, c := range group[i].AppliesTo {
					if group[j].appliesTo(c) {
						return fmt.Errorf("%w: %s and %s both match %s at priority %d",
							ErrAmbiguousRules, group[i].ID, group[j].ID, c, p)
					}
				}
			}
		}
	}
	return nil
}

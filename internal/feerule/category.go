package feerule

import (
	"fmt"
	"strings"
)

// Category is the closed set of transaction tags rules can target.
type Category string

const (
	CategoryGoods    Category = "goods"
	CategoryServices Category = "services"
	CategoryFood     Category = "food"
	CategoryProperty Category = "property"
	CategoryJobs     Category = "jobs"
	CategoryDelivery Category = "delivery"
	CategoryDigital  Category = "digital"
)

var knownCategories = map[Category]struct{}{
	CategoryGoods:    {},
	CategoryServices: {},
	CategoryFood:     {},
	CategoryProperty: {},
	CategoryJobs:     {},
	CategoryDelivery: {},
	CategoryDigital:  {},
}

// ParseCategory fails fast on unrecognized tags instead of letting them match nothing.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownCategories[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
	return c, nil
}

func Categories() []Category {
	return []Category{
		CategoryGoods,
		CategoryServices,
		CategoryFood,
		CategoryProperty,
		CategoryJobs,
		CategoryDelivery,
		CategoryDigital,
	}
}

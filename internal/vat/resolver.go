package vat

import (
	"strings"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/domain"
)

// Source identifies which step of the cascade produced the effective rate.
type Source string

const (
	SourceProduct      Source = "product"
	SourceConfig       Source = "store_category"
	SourceStoreDefault Source = "store_default"
	SourceSystem       Source = "system_default"
)

// Resolve walks the rate cascade for one line and returns the first
// applicable rate:
//
//  1. the product's own rate, when non-zero
//  2. an active configuration matching store id and category
//     (category compared case-insensitively)
//  3. the store's default rate, when non-zero
//  4. zero
//
// At most one configuration should match a given store+category pair; if
// more are supplied the first in the slice wins, so the result does not
// depend on map iteration or other unstable ordering.
func Resolve(category string, productRate decimal.Decimal, storeID string, storeDefault decimal.Decimal, configs []domain.VATConfig) (decimal.Decimal, Source) {
	if !productRate.IsZero() {
		return productRate, SourceProduct
	}

	for _, cfg := range configs {
		if !cfg.Active || cfg.StoreID != storeID {
			continue
		}
		if strings.EqualFold(cfg.Category, category) {
			return cfg.Rate, SourceConfig
		}
	}

	if !storeDefault.IsZero() {
		return storeDefault, SourceStoreDefault
	}
	return decimal.Zero, SourceSystem
}

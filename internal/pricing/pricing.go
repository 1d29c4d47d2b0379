package pricing

import (
	"strings"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// LineBase is the undiscounted total of a line: unit price times quantity.
func LineBase(line domain.CartLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// LineTotal applies the line discount to the base. Percentage discounts
// subtract base*amount/100, fixed discounts subtract the amount directly.
// The result is clamped to [0, base] whatever the discount magnitude.
func LineTotal(line domain.CartLine) decimal.Decimal {
	base := LineBase(line)
	if line.Discount == nil {
		return base
	}

	total := base
	switch line.Discount.Type {
	case domain.DiscountPercentage:
		total = base.Sub(base.Mul(line.Discount.Amount).Div(hundred))
	case domain.DiscountFixed:
		total = base.Sub(line.Discount.Amount)
	}

	if total.IsNegative() {
		return decimal.Zero
	}
	if total.GreaterThan(base) {
		return base
	}
	return total
}

// Subtotal sums the undiscounted line bases. Line discounts deliberately do
// not reduce the subtotal: they only affect the per-line displayed total.
func Subtotal(lines []domain.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(LineBase(line))
	}
	return sum
}

// VATTotal accumulates per-line VAT on the undiscounted base, mirroring
// Subtotal. Full precision is kept; rounding happens at presentation only.
func VATTotal(lines []domain.CartLine) decimal.Decimal {
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(LineBase(line).Mul(line.VATRate).Div(hundred))
	}
	return sum
}

// TransactionDiscountAmount resolves the cart-level discount against the
// taxed total: percentage values scale with subtotal+VAT, fixed values
// subtract directly. The amount never exceeds the taxed total.
func TransactionDiscountAmount(disc *domain.TransactionDiscount, taxedTotal decimal.Decimal) decimal.Decimal {
	if disc == nil {
		return decimal.Zero
	}

	amount := disc.Amount
	if disc.Type == domain.DiscountPercentage {
		amount = taxedTotal.Mul(disc.Amount).Div(hundred)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(taxedTotal) {
		return taxedTotal
	}
	return amount
}

// GrandTotal is subtotal + VAT minus the transaction discount, never
// negative.
func GrandTotal(lines []domain.CartLine, disc *domain.TransactionDiscount) decimal.Decimal {
	taxed := Subtotal(lines).Add(VATTotal(lines))
	total := taxed.Sub(TransactionDiscountAmount(disc, taxed))
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// InferDiscountType maps a raw numeric discount value without an explicit
// type: values above 100 cannot be a percentage and are read as a fixed
// amount. The heuristic is lossy (a 150% markup intent is indistinguishable
// from a 150 fixed discount) but is kept for parity with cashier habits.
func InferDiscountType(value decimal.Decimal) domain.DiscountType {
	if value.GreaterThan(hundred) {
		return domain.DiscountFixed
	}
	return domain.DiscountPercentage
}

// ParseDiscount turns raw operator input into a line discount. Empty,
// non-numeric, or negative input clears the discount (nil result). When no
// explicit type is given the type is inferred from the magnitude.
func ParseDiscount(raw string, explicit domain.DiscountType) *domain.LineDiscount {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil || value.IsNegative() {
		return nil
	}

	discountType := explicit
	if discountType != domain.DiscountPercentage && discountType != domain.DiscountFixed {
		discountType = InferDiscountType(value)
	}
	return &domain.LineDiscount{Amount: value, Type: discountType}
}

// Display rounds a monetary value to two decimals for presentation.
func Display(value decimal.Decimal) string {
	return value.StringFixed(2)
}

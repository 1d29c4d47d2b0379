package pricing

import (
	"testing"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/domain"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", value, err)
	}
	return d
}

func TestLineTotalPercentageDiscount(t *testing.T) {
	line := domain.CartLine{
		UnitPrice: dec(t, "10.00"),
		Quantity:  3,
		Discount:  &domain.LineDiscount{Amount: dec(t, "10"), Type: domain.DiscountPercentage},
	}

	if got := Display(LineTotal(line)); got != "27.00" {
		t.Fatalf("expected line total 27.00, got %s", got)
	}
}

func TestLineTotalFixedDiscountClampsToZero(t *testing.T) {
	line := domain.CartLine{
		UnitPrice: dec(t, "10.00"),
		Quantity:  3,
		Discount:  &domain.LineDiscount{Amount: dec(t, "150"), Type: domain.DiscountFixed},
	}

	if got := LineTotal(line); !got.IsZero() {
		t.Fatalf("expected oversized fixed discount to clamp line total to 0, got %s", got)
	}
}

func TestSubtotalIgnoresLineDiscounts(t *testing.T) {
	lines := []domain.CartLine{
		{
			UnitPrice: dec(t, "10.00"),
			Quantity:  3,
			Discount:  &domain.LineDiscount{Amount: dec(t, "10"), Type: domain.DiscountPercentage},
		},
	}

	if got := Display(Subtotal(lines)); got != "30.00" {
		t.Fatalf("expected undiscounted subtotal 30.00, got %s", got)
	}
}

func TestVATTotalUsesUndiscountedBase(t *testing.T) {
	lines := []domain.CartLine{
		{
			UnitPrice: dec(t, "100.00"),
			Quantity:  1,
			VATRate:   dec(t, "10"),
			Discount:  &domain.LineDiscount{Amount: dec(t, "50"), Type: domain.DiscountPercentage},
		},
	}

	// VAT follows the base, not the discounted total.
	if got := Display(VATTotal(lines)); got != "10.00" {
		t.Fatalf("expected VAT 10.00 on the undiscounted base, got %s", got)
	}
}

func TestVATTotalKeepsFullPrecision(t *testing.T) {
	lines := []domain.CartLine{
		{UnitPrice: dec(t, "0.10"), Quantity: 1, VATRate: dec(t, "11")},
		{UnitPrice: dec(t, "0.10"), Quantity: 1, VATRate: dec(t, "11")},
		{UnitPrice: dec(t, "0.10"), Quantity: 1, VATRate: dec(t, "11")},
	}

	// 3 x 0.011 accumulates exactly, no float drift.
	if got := VATTotal(lines); !got.Equal(dec(t, "0.033")) {
		t.Fatalf("expected exact VAT 0.033, got %s", got)
	}
}

func TestTransactionDiscountPercentageScalesTaxedTotal(t *testing.T) {
	disc := &domain.TransactionDiscount{Amount: dec(t, "10"), Type: domain.DiscountPercentage}

	got := TransactionDiscountAmount(disc, dec(t, "110.00"))
	if !got.Equal(dec(t, "11")) {
		t.Fatalf("expected discount 11, got %s", got)
	}
}

func TestTransactionDiscountNeverExceedsTaxedTotal(t *testing.T) {
	disc := &domain.TransactionDiscount{Amount: dec(t, "500"), Type: domain.DiscountFixed}

	got := TransactionDiscountAmount(disc, dec(t, "40.00"))
	if !got.Equal(dec(t, "40.00")) {
		t.Fatalf("expected discount clamped to taxed total 40.00, got %s", got)
	}
}

func TestGrandTotalNeverNegative(t *testing.T) {
	lines := []domain.CartLine{
		{UnitPrice: dec(t, "5.00"), Quantity: 1},
	}
	disc := &domain.TransactionDiscount{Amount: dec(t, "999"), Type: domain.DiscountFixed}

	if got := GrandTotal(lines, disc); !got.IsZero() {
		t.Fatalf("expected grand total clamped to 0, got %s", got)
	}
}

func TestOversizedRawDiscountReadsAsFixedAndClamps(t *testing.T) {
	line := domain.CartLine{
		UnitPrice: dec(t, "20.00"),
		Quantity:  1,
		Discount:  ParseDiscount("150", ""),
	}

	if line.Discount == nil || line.Discount.Type != domain.DiscountFixed {
		t.Fatalf("expected raw 150 to read as a fixed discount, got %+v", line.Discount)
	}
	if got := LineTotal(line); !got.IsZero() {
		t.Fatalf("expected 150 fixed off a 20.00 line to clamp to 0, got %s", got)
	}
}

func TestInferDiscountType(t *testing.T) {
	if got := InferDiscountType(dec(t, "100")); got != domain.DiscountPercentage {
		t.Fatalf("expected 100 to read as percentage, got %s", got)
	}
	if got := InferDiscountType(dec(t, "100.01")); got != domain.DiscountFixed {
		t.Fatalf("expected 100.01 to read as fixed, got %s", got)
	}
}

func TestParseDiscount(t *testing.T) {
	if got := ParseDiscount("  ", ""); got != nil {
		t.Fatalf("expected blank input to clear the discount, got %+v", got)
	}
	if got := ParseDiscount("abc", ""); got != nil {
		t.Fatalf("expected non-numeric input to clear the discount, got %+v", got)
	}
	if got := ParseDiscount("-5", ""); got != nil {
		t.Fatalf("expected negative input to clear the discount, got %+v", got)
	}

	got := ParseDiscount("150", "")
	if got == nil || got.Type != domain.DiscountFixed {
		t.Fatalf("expected 150 to infer a fixed discount, got %+v", got)
	}

	got = ParseDiscount("20", domain.DiscountFixed)
	if got == nil || got.Type != domain.DiscountFixed || !got.Amount.Equal(dec(t, "20")) {
		t.Fatalf("expected explicit fixed discount of 20, got %+v", got)
	}
}

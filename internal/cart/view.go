package cart

import (
	"github.com/shopspring/decimal"

	"lumipos/backend/internal/domain"
	"lumipos/backend/internal/pricing"
)

// Lines returns a copy of the cart lines in display order.
func (s *Service) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	return lines
}

func (s *Service) CurrentStoreID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeID
}

func (s *Service) TransactionNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txNumber
}

func (s *Service) CustomerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customerID
}

func (s *Service) ResumedTransactionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumedTxID
}

// Subtotal is the sum of undiscounted line bases, full precision.
func (s *Service) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Subtotal(s.lines)
}

// VAT is the accumulated per-line VAT on the undiscounted base.
func (s *Service) VAT() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.VATTotal(s.lines)
}

// GrandTotal is subtotal + VAT minus the transaction discount.
func (s *Service) GrandTotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.GrandTotal(s.lines, s.txDiscount)
}

// View renders the cart for presentation: every monetary value rounded to
// two decimals. This is the only place rounding happens.
func (s *Service) View() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := domain.CartView{
		Lines:                make([]domain.CartLineView, 0, len(s.lines)),
		StoreID:              s.storeID,
		CustomerID:           s.customerID,
		TransactionNumber:    s.txNumber,
		ResumedTransactionID: s.resumedTxID,
	}

	for _, line := range s.lines {
		row := domain.CartLineView{
			Key:       line.Key,
			Name:      line.Name,
			UnitPrice: pricing.Display(line.UnitPrice),
			Quantity:  line.Quantity,
			VATRate:   pricing.Display(line.VATRate),
			VATSource: line.VATSource,
			Total:     pricing.Display(pricing.LineTotal(line)),
		}
		if line.Discount != nil {
			row.DiscountAmount = pricing.Display(line.Discount.Amount)
			row.DiscountType = string(line.Discount.Type)
		}
		view.Lines = append(view.Lines, row)
	}

	subtotal := pricing.Subtotal(s.lines)
	vatTotal := pricing.VATTotal(s.lines)
	view.Subtotal = pricing.Display(subtotal)
	view.VAT = pricing.Display(vatTotal)
	if s.txDiscount != nil {
		view.TransactionDiscount = pricing.Display(
			pricing.TransactionDiscountAmount(s.txDiscount, subtotal.Add(vatTotal)))
	}
	view.GrandTotal = pricing.Display(pricing.GrandTotal(s.lines, s.txDiscount))
	return view
}

package cart

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"lumipos/backend/internal/domain"
)

// stockAllows implements the quantity admission policy: the cart quantity
// after the requested delta must not exceed the last-observed stock. Ad-hoc
// lines and products with no stock observation yet are exempt.
func stockAllows(key domain.LineKey, requestedDelta int, currentCartQty int, available *int) bool {
	if !key.IsProduct() || available == nil {
		return true
	}
	return currentCartQty+requestedDelta <= *available
}

// reconcileSignature fingerprints one (cart-state, stock-state) pair: the
// per-line quantities in cart order concatenated with the per-product stock
// values in sorted id order. A reconciliation pass is skipped whenever the
// signature matches the last successful pass, so redundant refresh
// completions cannot re-raise adjustment notifications.
func reconcileSignature(lines []domain.CartLine, stock map[string]int) string {
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%s=%d;", line.Key, line.Quantity)
	}
	b.WriteByte('|')

	ids := make([]string, 0, len(stock))
	for id := range stock {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "%s=%d;", id, stock[id])
	}
	return b.String()
}

// Reconcile merges fresher stock levels into the cached view and re-checks
// every tracked line. Quantities above the refreshed stock are clamped down
// (a line whose stock reached zero is dropped entirely) and one
// QuantityAdjusted event is raised per corrected line. The pass is
// idempotent for a given cart and stock state.
func (s *Service) Reconcile(stock map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked(stock)
}

func (s *Service) reconcileLocked(stock map[string]int) {
	for id, qty := range stock {
		s.stockCache[id] = qty
	}

	sig := reconcileSignature(s.lines, s.stockCache)
	if sig == s.lastReconcileSig {
		return
	}

	adjusted := false
	kept := s.lines[:0]
	for i := range s.lines {
		line := s.lines[i]
		if line.Key.IsProduct() {
			if avail, ok := s.stockCache[line.Key.ProductID]; ok {
				observed := avail
				line.StockSnapshot = &observed
				if line.Quantity > avail {
					adjusted = true
					s.notifier.Notify(QuantityAdjustedEvent{
						ProductName:    line.Name,
						NewQuantity:    avail,
						AvailableStock: avail,
					})
					if avail < 1 {
						continue
					}
					line.Quantity = avail
				}
			}
		}
		kept = append(kept, line)
	}
	s.lines = kept

	// Record the post-adjustment signature so the next pass with the same
	// inputs is a no-op.
	s.lastReconcileSig = reconcileSignature(s.lines, s.stockCache)

	if adjusted {
		s.persistLocked()
	}
}

// RefreshStock fetches live stock for every tracked product in the cart and
// feeds it through the reconciliation pass. Completions superseded by a
// newer refresh or a store switch are discarded.
func (s *Service) RefreshStock(ctx context.Context) {
	s.mu.Lock()
	s.stockToken++
	token := s.stockToken
	storeID := s.storeID
	ids := make([]string, 0, len(s.lines))
	for _, line := range s.lines {
		if line.Key.IsProduct() {
			ids = append(ids, line.Key.ProductID)
		}
	}
	s.mu.Unlock()

	if storeID == "" || len(ids) == 0 {
		return
	}

	levels, err := s.catalog.GetStockLevels(ctx, storeID, ids)
	if err != nil {
		log.Printf("[cart] WARN: stock refresh failed store=%s: %v", storeID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stockToken != token {
		// A newer refresh or a store switch superseded this result.
		return
	}
	s.reconcileLocked(levels)
}

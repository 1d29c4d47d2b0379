package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/domain"
)

func TestReconcileClampsQuantityDown(t *testing.T) {
	f := newFixture(t, "store-main")
	item := f.item(t, "prod-001")

	if err := f.svc.AddItem(context.Background(), item, 5, ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.svc.Reconcile(map[string]int{"prod-001": 3})

	line := f.svc.Lines()[0]
	if line.Quantity != 3 {
		t.Fatalf("expected quantity clamped to 3, got %d", line.Quantity)
	}
	if line.StockSnapshot == nil || *line.StockSnapshot != 3 {
		t.Fatalf("expected stock snapshot updated to 3, got %v", line.StockSnapshot)
	}

	events := f.recorder.byKind("quantity_adjusted")
	if len(events) != 1 {
		t.Fatalf("expected one quantity_adjusted event, got %d", len(events))
	}
	adj := events[0].(QuantityAdjustedEvent)
	if adj.NewQuantity != 3 || adj.AvailableStock != 3 {
		t.Fatalf("unexpected event payload: %+v", adj)
	}
}

func TestReconcileIsIdempotentForSameState(t *testing.T) {
	f := newFixture(t, "store-main")
	item := f.item(t, "prod-001")

	if err := f.svc.AddItem(context.Background(), item, 5, ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.svc.Reconcile(map[string]int{"prod-001": 3})
	f.svc.Reconcile(map[string]int{"prod-001": 3})

	if got := len(f.recorder.byKind("quantity_adjusted")); got != 1 {
		t.Fatalf("expected the second identical pass to stay silent, got %d events", got)
	}
}

func TestReconcileDropsLinesWithZeroStock(t *testing.T) {
	f := newFixture(t, "store-main")
	item := f.item(t, "prod-001")

	if err := f.svc.AddItem(context.Background(), item, 2, ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.svc.Reconcile(map[string]int{"prod-001": 0})

	if len(f.svc.Lines()) != 0 {
		t.Fatalf("expected zero-stock line dropped")
	}
	if got := len(f.recorder.byKind("quantity_adjusted")); got != 1 {
		t.Fatalf("expected one quantity_adjusted event, got %d", got)
	}
}

func TestReconcileLeavesAdHocLinesAlone(t *testing.T) {
	f := newFixture(t, "store-main")

	item := domain.SaleItem{Key: domain.AdHoc("misc-1"), Name: "Gift Wrap", UnitPrice: decimal.NewFromInt(2)}
	if err := f.svc.AddItem(context.Background(), item, 7, ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.svc.Reconcile(map[string]int{"prod-001": 0})

	if len(f.svc.Lines()) != 1 || f.svc.Lines()[0].Quantity != 7 {
		t.Fatalf("expected ad-hoc line untouched by reconciliation")
	}
}

func TestRefreshStockPullsFromCatalog(t *testing.T) {
	f := newFixture(t, "store-main")
	item := f.item(t, "prod-001")

	if err := f.svc.AddItem(context.Background(), item, 5, ""); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	f.repo.SetStock("store-main", "prod-001", 2)
	f.svc.RefreshStock(context.Background())

	if got := f.svc.Lines()[0].Quantity; got != 2 {
		t.Fatalf("expected refresh to clamp quantity to 2, got %d", got)
	}
}

func TestStockAllows(t *testing.T) {
	productKey := domain.ByProduct("prod-001", "SKU-ESP-01")
	five := 5

	if !stockAllows(domain.AdHoc("misc"), 100, 0, nil) {
		t.Fatalf("ad-hoc keys must always be allowed")
	}
	if !stockAllows(productKey, 3, 0, nil) {
		t.Fatalf("unknown stock must not block the sale")
	}
	if !stockAllows(productKey, 3, 2, &five) {
		t.Fatalf("expected 2+3 <= 5 to be allowed")
	}
	if stockAllows(productKey, 4, 2, &five) {
		t.Fatalf("expected 2+4 > 5 to be rejected")
	}
}

func TestReconcileSignatureOrdering(t *testing.T) {
	lines := []domain.CartLine{
		{Key: domain.ByProduct("prod-002", "SKU-MLK-01"), Quantity: 1},
		{Key: domain.ByProduct("prod-001", "SKU-ESP-01"), Quantity: 2},
	}

	a := reconcileSignature(lines, map[string]int{"prod-001": 4, "prod-002": 9})
	b := reconcileSignature(lines, map[string]int{"prod-002": 9, "prod-001": 4})
	if a != b {
		t.Fatalf("signature must not depend on map iteration order:\n%s\n%s", a, b)
	}

	c := reconcileSignature(lines, map[string]int{"prod-001": 3, "prod-002": 9})
	if a == c {
		t.Fatalf("different stock states must produce different signatures")
	}
}

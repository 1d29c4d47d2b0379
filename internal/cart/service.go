package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/catalog"
	"lumipos/backend/internal/domain"
	"lumipos/backend/internal/numbering"
	"lumipos/backend/internal/pricing"
	"lumipos/backend/internal/snapshot"
	"lumipos/backend/internal/vat"
	"lumipos/backend/internal/xid"
)

const (
	// SnapshotKey is the fixed key the rolling cart snapshot lives under.
	SnapshotKey = "cart:snapshot"

	heldKeyPrefix = "cart:held:"

	collaboratorTimeout = 5 * time.Second
)

var (
	ErrNoStoreSelected = errors.New("no store selected")
	ErrOutOfStock      = errors.New("insufficient stock")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrLineNotFound    = errors.New("cart line not found")
	ErrStoreMismatch   = errors.New("item store does not match current store")
	ErrEmptyCart       = errors.New("cart is empty")
)

// Service owns the in-progress sale. All mutations are serialized by one
// mutex and complete atomically; collaborator round-trips (stock levels, VAT
// configurations, transaction numbers) run asynchronously against the most
// recently cached data and are corrected later by the reconciliation pass.
type Service struct {
	mu sync.Mutex

	catalog   catalog.Repository
	snapshots snapshot.Store
	issuer    numbering.Issuer
	notifier  Notifier

	lines       []domain.CartLine
	customerID  string
	storeID     string
	txNumber    string
	resumedTxID string
	txDiscount  *domain.TransactionDiscount

	storeCtx         *domain.StoreContext
	vatConfigs       []domain.VATConfig
	stockCache       map[string]int
	lastReconcileSig string

	// generation invalidates in-flight async results across Clear and
	// snapshot restores; the per-concern tokens invalidate superseded
	// stock/VAT fetches.
	generation uint64
	stockToken uint64
	vatToken   uint64

	snapCh chan []byte
	closed chan struct{}
}

func New(repo catalog.Repository, snapshots snapshot.Store, issuer numbering.Issuer, notifier Notifier, defaultStoreID string) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}

	s := &Service{
		catalog:    repo,
		snapshots:  snapshots,
		issuer:     issuer,
		notifier:   notifier,
		storeID:    defaultStoreID,
		stockCache: make(map[string]int),
		snapCh:     make(chan []byte, 1),
		closed:     make(chan struct{}),
	}
	go s.snapshotWriter()
	return s
}

// Close stops the background snapshot writer. Pending writes are flushed.
func (s *Service) Close() {
	close(s.closed)
}

// AddItem appends the item to the cart, or sums quantities into the
// existing line with the same key. The line's VAT rate is re-resolved, the
// existing discount is kept and re-applies to the new base. The mutation is
// rejected, leaving the cart unchanged, when no store context is available
// or when the quantity would exceed the last-observed stock.
func (s *Service) AddItem(ctx context.Context, item domain.SaleItem, quantity int, storeID string) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	effective := storeID
	if effective == "" {
		effective = s.storeID
	}
	if effective == "" {
		s.notifier.Notify(NoStoreSelectedEvent{})
		return ErrNoStoreSelected
	}
	if s.storeID != "" && effective != s.storeID {
		return ErrStoreMismatch
	}

	idx := s.findLineLocked(item.Key)
	currentQty := 0
	if idx >= 0 {
		currentQty = s.lines[idx].Quantity
	}

	available := s.availableStockLocked(item.Key, item.Stock)
	if !stockAllows(item.Key, quantity, currentQty, available) {
		s.notifier.Notify(OutOfStockEvent{
			ProductName:    item.Name,
			AvailableStock: *available,
			RequestedQty:   quantity,
			CurrentCartQty: currentQty,
		})
		return ErrOutOfStock
	}

	if s.storeID == "" {
		s.storeID = effective
	}
	if item.Key.IsProduct() && item.Stock != nil {
		s.stockCache[item.Key.ProductID] = *item.Stock
	}

	rate, source := s.resolveVATLocked(item.Category, item.VATRate, effective)

	if idx >= 0 {
		line := &s.lines[idx]
		line.Quantity += quantity
		line.VATRate = rate
		line.VATSource = string(source)
		if available != nil {
			observed := *available
			line.StockSnapshot = &observed
		}
	} else {
		line := domain.CartLine{
			Key:       item.Key,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  quantity,
			Category:  item.Category,
			VATRate:   rate,
			VATSource: string(source),
			StoreID:   effective,
		}
		if available != nil {
			observed := *available
			line.StockSnapshot = &observed
		}
		s.lines = append(s.lines, line)
	}

	s.ensureTransactionNumberLocked()
	s.persistLocked()
	return nil
}

// RemoveItem deletes at most one line: the first whose key matches by
// product id when both sides carry one, otherwise by SKU.
func (s *Service) RemoveItem(key domain.LineKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLineLocked(key)
	if idx < 0 {
		return
	}
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.persistLocked()
}

// SetQuantity sets an absolute quantity for the line, clamped to at least 1.
// The change is re-validated against the last-observed stock; on rejection
// the quantity is left unchanged and an out-of-stock event fires.
func (s *Service) SetQuantity(key domain.LineKey, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLineLocked(key)
	if idx < 0 {
		return ErrLineNotFound
	}
	line := &s.lines[idx]

	available := s.availableStockLocked(line.Key, nil)
	if !stockAllows(line.Key, quantity-line.Quantity, line.Quantity, available) {
		s.notifier.Notify(OutOfStockEvent{
			ProductName:    line.Name,
			AvailableStock: *available,
			RequestedQty:   quantity,
			CurrentCartQty: line.Quantity,
		})
		return ErrOutOfStock
	}

	line.Quantity = quantity
	s.persistLocked()
	return nil
}

// SetDiscount parses the raw operator input and stores it on the line.
// Empty or invalid input clears the discount. The line's displayed total is
// derived on read and clamped to [0, base] by the pricing engine.
func (s *Service) SetDiscount(key domain.LineKey, rawValue string, explicit domain.DiscountType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findLineLocked(key)
	if idx < 0 {
		return ErrLineNotFound
	}

	s.lines[idx].Discount = pricing.ParseDiscount(rawValue, explicit)
	s.persistLocked()
	return nil
}

// SetTransactionDiscount stores a whole-cart discount. Empty or invalid
// input clears it. The raw input is kept for display and auditing.
func (s *Service) SetTransactionDiscount(rawValue string, explicit domain.DiscountType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parsed := pricing.ParseDiscount(rawValue, explicit)
	if parsed == nil {
		s.txDiscount = nil
	} else {
		s.txDiscount = &domain.TransactionDiscount{
			Amount:        parsed.Amount,
			Type:          parsed.Type,
			OriginalValue: strings.TrimSpace(rawValue),
		}
	}
	s.persistLocked()
}

// SetCustomer attaches a customer reference to the sale. The cart does not
// own the customer record, only its id.
func (s *Service) SetCustomer(customerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.customerID = strings.TrimSpace(customerID)
	s.persistLocked()
}

// SwitchStore changes the active store context. Lines belonging to another
// store are purged (all lines, when the new id is empty); a filter event is
// raised only when at least one line was removed. In-flight stock and VAT
// fetches for the old store are invalidated, and fresh store data is fetched
// in the background.
func (s *Service) SwitchStore(newStoreID string) {
	s.mu.Lock()

	if newStoreID == s.storeID {
		s.mu.Unlock()
		return
	}

	removed := 0
	if newStoreID == "" {
		removed = len(s.lines)
		s.lines = nil
	} else {
		kept := s.lines[:0]
		for _, line := range s.lines {
			if line.StoreID == newStoreID {
				kept = append(kept, line)
			} else {
				removed++
			}
		}
		s.lines = kept
	}

	s.storeID = newStoreID
	s.storeCtx = nil
	s.vatConfigs = nil
	s.stockToken++
	s.vatToken++

	if removed > 0 {
		s.notifier.Notify(CartFilteredByStoreEvent{RemovedCount: removed, StoreID: newStoreID})
	}
	s.persistLocked()
	s.mu.Unlock()

	if newStoreID != "" {
		go s.RefreshStoreContext(context.Background())
	}
}

// Clear empties the cart and all transaction metadata in one step.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.persistLocked()
}

func (s *Service) clearLocked() {
	s.lines = nil
	s.customerID = ""
	s.txNumber = ""
	s.resumedTxID = ""
	s.txDiscount = nil
	s.lastReconcileSig = ""
	s.generation++
}

// ResumeFromSnapshot replaces the cart state with a previously saved
// snapshot. Malformed payloads fail soft: the error is logged and the cart
// is left empty rather than propagating.
func (s *Service) ResumeFromSnapshot(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeLocked(payload)
	s.persistLocked()
}

func (s *Service) resumeLocked(payload []byte) {
	s.clearLocked()

	var snap domain.CartSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		log.Printf("[cart] WARN: discarding malformed snapshot: %v", err)
		return
	}

	s.lines = snap.Lines
	s.customerID = snap.CustomerID
	if snap.StoreID != "" {
		s.storeID = snap.StoreID
	}
	s.txNumber = snap.TransactionNumber
	s.resumedTxID = snap.ResumedTransactionID
	s.txDiscount = snap.TransactionDiscount
}

// Restore loads the rolling snapshot at startup. A missing or unreadable
// snapshot degrades to an empty, valid cart.
func (s *Service) Restore(ctx context.Context) {
	payload, err := s.snapshots.Get(ctx, SnapshotKey)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			log.Printf("[cart] WARN: snapshot restore failed: %v", err)
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeLocked(payload)
}

// Hold parks the live cart: the snapshot is written durably under a
// per-hold key, then the cart is cleared for the next sale.
func (s *Service) Hold(ctx context.Context, note string) (domain.HeldSale, error) {
	s.mu.Lock()
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return domain.HeldSale{}, ErrEmptyCart
	}
	held := domain.HeldSale{
		ID:       xid.New("hold"),
		Note:     strings.TrimSpace(note),
		HeldAt:   time.Now().UTC(),
		Snapshot: s.snapshotLocked(),
	}
	s.mu.Unlock()

	payload, err := json.Marshal(held)
	if err != nil {
		return domain.HeldSale{}, err
	}
	if err := s.snapshots.Set(ctx, heldKeyPrefix+held.ID, payload); err != nil {
		return domain.HeldSale{}, err
	}

	s.Clear()
	return held, nil
}

// ListHeld returns all parked sales, in no particular order.
func (s *Service) ListHeld(ctx context.Context) ([]domain.HeldSale, error) {
	keys, err := s.snapshots.Keys(ctx, heldKeyPrefix)
	if err != nil {
		return nil, err
	}

	held := make([]domain.HeldSale, 0, len(keys))
	for _, key := range keys {
		payload, err := s.snapshots.Get(ctx, key)
		if err != nil {
			continue
		}
		var sale domain.HeldSale
		if err := json.Unmarshal(payload, &sale); err != nil {
			log.Printf("[cart] WARN: skipping malformed held sale %s: %v", key, err)
			continue
		}
		held = append(held, sale)
	}
	return held, nil
}

// ResumeHeld restores a parked sale into the live cart and deletes the hold.
// The hold id is recorded as the resumed transaction id.
func (s *Service) ResumeHeld(ctx context.Context, holdID string) error {
	payload, err := s.snapshots.Get(ctx, heldKeyPrefix+holdID)
	if err != nil {
		return err
	}

	var sale domain.HeldSale
	if err := json.Unmarshal(payload, &sale); err != nil {
		log.Printf("[cart] WARN: held sale %s is malformed: %v", holdID, err)
		return err
	}

	snapPayload, err := json.Marshal(sale.Snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.resumeLocked(snapPayload)
	s.resumedTxID = sale.ID
	s.persistLocked()
	s.mu.Unlock()

	if err := s.snapshots.Delete(ctx, heldKeyPrefix+holdID); err != nil {
		log.Printf("[cart] WARN: failed to delete held sale %s: %v", holdID, err)
	}
	return nil
}

// RefreshStoreContext fetches the store record and its active VAT
// configurations, then re-resolves the VAT rate of every line. Superseded
// completions are discarded.
func (s *Service) RefreshStoreContext(ctx context.Context) {
	s.mu.Lock()
	s.vatToken++
	token := s.vatToken
	storeID := s.storeID
	s.mu.Unlock()

	if storeID == "" {
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	storeCtx, err := s.catalog.GetStore(fetchCtx, storeID)
	if err != nil {
		log.Printf("[cart] WARN: store lookup failed store=%s: %v", storeID, err)
		return
	}
	configs, err := s.catalog.ListActiveVATConfigs(fetchCtx, storeID)
	if err != nil {
		log.Printf("[cart] WARN: VAT config fetch failed store=%s: %v", storeID, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vatToken != token || s.storeID != storeID {
		return
	}

	s.storeCtx = storeCtx
	s.vatConfigs = configs

	changed := false
	for i := range s.lines {
		line := &s.lines[i]
		rate, source := s.resolveVATLocked(line.Category, s.productRateLocked(line), line.StoreID)
		if !rate.Equal(line.VATRate) || string(source) != line.VATSource {
			line.VATRate = rate
			line.VATSource = string(source)
			changed = true
		}
	}
	if changed {
		s.persistLocked()
	}
}

// productRateLocked recovers the product-level rate a line was added with:
// only lines resolved from the product source carry one.
func (s *Service) productRateLocked(line *domain.CartLine) decimal.Decimal {
	if line.VATSource == string(vat.SourceProduct) {
		return line.VATRate
	}
	return decimal.Zero
}

func (s *Service) resolveVATLocked(category string, productRate decimal.Decimal, storeID string) (decimal.Decimal, vat.Source) {
	storeDefault := decimal.Zero
	if s.storeCtx != nil && s.storeCtx.ID == storeID {
		storeDefault = s.storeCtx.DefaultVATRate
	}
	return vat.Resolve(category, productRate, storeID, storeDefault, s.vatConfigs)
}

// availableStockLocked picks the freshest stock observation for a key: the
// value supplied with this mutation wins over the cached one. nil means no
// observation exists and validation is skipped.
func (s *Service) availableStockLocked(key domain.LineKey, observed *int) *int {
	if !key.IsProduct() {
		return nil
	}
	if observed != nil {
		v := *observed
		return &v
	}
	if cached, ok := s.stockCache[key.ProductID]; ok {
		v := cached
		return &v
	}
	return nil
}

func (s *Service) findLineLocked(key domain.LineKey) int {
	for i := range s.lines {
		if s.lines[i].Key.Matches(key) {
			return i
		}
	}
	return -1
}

// ensureTransactionNumberLocked lazily assigns the transaction number when
// the first line lands. Issuance is a network round-trip, so it runs in the
// background; a number arriving after Clear is dropped via the generation
// guard.
func (s *Service) ensureTransactionNumberLocked() {
	if s.txNumber != "" || s.issuer == nil {
		return
	}
	generation := s.generation

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		defer cancel()

		number, err := s.issuer.Next(ctx)
		if err != nil {
			log.Printf("[cart] WARN: transaction number issuance failed: %v", err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.generation != generation || s.txNumber != "" {
			return
		}
		s.txNumber = number
		s.persistLocked()
	}()
}

func (s *Service) snapshotLocked() domain.CartSnapshot {
	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)

	return domain.CartSnapshot{
		Lines:                lines,
		CustomerID:           s.customerID,
		StoreID:              s.storeID,
		TransactionNumber:    s.txNumber,
		ResumedTransactionID: s.resumedTxID,
		TransactionDiscount:  s.txDiscount,
		SavedAt:              time.Now().UTC(),
	}
}

// persistLocked hands the current snapshot to the background writer.
// Writes are fire-and-forget: only the newest pending payload is kept, and
// failures are logged, never surfaced.
func (s *Service) persistLocked() {
	if s.snapshots == nil {
		return
	}
	payload, err := json.Marshal(s.snapshotLocked())
	if err != nil {
		log.Printf("[cart] WARN: snapshot marshal failed: %v", err)
		return
	}

	for {
		select {
		case s.snapCh <- payload:
			return
		default:
			select {
			case <-s.snapCh:
			default:
			}
		}
	}
}

func (s *Service) snapshotWriter() {
	for {
		select {
		case payload := <-s.snapCh:
			ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
			if err := s.snapshots.Set(ctx, SnapshotKey, payload); err != nil {
				log.Printf("[cart] WARN: snapshot write failed: %v", err)
			}
			cancel()
		case <-s.closed:
			// Flush the last pending snapshot, if any.
			select {
			case payload := <-s.snapCh:
				ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
				if err := s.snapshots.Set(ctx, SnapshotKey, payload); err != nil {
					log.Printf("[cart] WARN: snapshot write failed: %v", err)
				}
				cancel()
			default:
			}
			return
		}
	}
}

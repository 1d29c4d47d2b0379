package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lumipos/backend/internal/cart"
	"lumipos/backend/internal/catalog"
	"lumipos/backend/internal/domain"
	"lumipos/backend/internal/snapshot"
)

type API struct {
	cart          *cart.Service
	catalog       catalog.Repository
	auth          *AuthManager
	allowedOrigin string
	events        *EventLog
	loginLimiter  *attemptLimiter
}

func New(svc *cart.Service, repo catalog.Repository, auth *AuthManager, events *EventLog, allowedOrigin string) *API {
	if events == nil {
		events = NewEventLog(64)
	}
	return &API{
		cart:          svc,
		catalog:       repo,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		events:        events,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

// EventLog is a bounded ring of recent cart events, exposed over the API so
// the register UI can show operator-facing notices (out-of-stock rejections,
// reconciliation adjustments, store filter purges).
type EventLog struct {
	mu      sync.Mutex
	max     int
	entries []EventEntry
}

type EventEntry struct {
	Kind  string     `json:"kind"`
	At    time.Time  `json:"at"`
	Event cart.Event `json:"event"`
}

func NewEventLog(max int) *EventLog {
	if max < 1 {
		max = 64
	}
	return &EventLog{max: max}
}

func (l *EventLog) Notify(event cart.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, EventEntry{
		Kind:  event.Kind(),
		At:    time.Now().UTC(),
		Event: event,
	})
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Recent returns the logged events, newest first.
func (l *EventLog) Recent() []EventEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]EventEntry, len(l.entries))
	for i, entry := range l.entries {
		out[len(l.entries)-1-i] = entry
	}
	return out
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))

	mux.HandleFunc("/api/v1/cart", a.requireAuth(a.handleCart, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items", a.requireAuth(a.handleAddItem, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items/quantity", a.requireAuth(a.handleSetQuantity, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items/discount", a.requireAuth(a.handleLineDiscount, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/items/delete", a.requireAuth(a.handleRemoveItem, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/discount", a.requireAuth(a.handleTransactionDiscount, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/customer", a.requireAuth(a.handleCustomer, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/store", a.requireAuth(a.handleSwitchStore, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/clear", a.requireAuth(a.handleClear, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/hold", a.requireAuth(a.handleHold, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/resume", a.requireAuth(a.handleResume, "cashier", "admin"))
	mux.HandleFunc("/api/v1/cart/events", a.requireAuth(a.handleEvents, "cashier", "admin"))

	mux.HandleFunc("/api/v1/users/cashiers", a.requireAuth(a.handleCashiers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r)
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	storeID := strings.TrimSpace(r.URL.Query().Get("store_id"))
	if storeID == "" {
		storeID = a.cart.CurrentStoreID()
	}

	products, err := a.catalog.ListProducts(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.cart.View())
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	StoreID   string `json:"store_id"`

	// Ad-hoc item fields, used when no product reference is given.
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	VATRate   string `json:"vat_rate"`
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	item, err := a.resolveSaleItem(r, req)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.cart.AddItem(r.Context(), item, req.Quantity, strings.TrimSpace(req.StoreID)); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cart.View())
}

// resolveSaleItem turns the request into a priced sale item: a catalog lookup
// by product id, then by SKU, falling back to an ad-hoc item when the payload
// carries its own name and price.
func (a *API) resolveSaleItem(r *http.Request, req addItemRequest) (domain.SaleItem, error) {
	lookupStore := strings.TrimSpace(req.StoreID)
	if lookupStore == "" {
		lookupStore = a.cart.CurrentStoreID()
	}

	switch {
	case strings.TrimSpace(req.ProductID) != "":
		product, err := a.catalog.GetProduct(r.Context(), lookupStore, strings.TrimSpace(req.ProductID))
		if err != nil {
			return domain.SaleItem{}, err
		}
		return saleItemFromProduct(product), nil

	case strings.TrimSpace(req.SKU) != "" && strings.TrimSpace(req.Name) == "":
		product, err := a.catalog.GetProductBySKU(r.Context(), lookupStore, strings.TrimSpace(req.SKU))
		if err != nil {
			return domain.SaleItem{}, err
		}
		return saleItemFromProduct(product), nil

	default:
		sku := strings.TrimSpace(req.SKU)
		name := strings.TrimSpace(req.Name)
		if sku == "" || name == "" {
			return domain.SaleItem{}, errors.New("ad-hoc item requires sku, name and unit_price")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
		if err != nil || price.IsNegative() {
			return domain.SaleItem{}, errors.New("invalid unit_price")
		}
		rate := decimal.Zero
		if raw := strings.TrimSpace(req.VATRate); raw != "" {
			rate, err = decimal.NewFromString(raw)
			if err != nil || rate.IsNegative() {
				return domain.SaleItem{}, errors.New("invalid vat_rate")
			}
		}
		return domain.SaleItem{
			Key:       domain.AdHoc(sku),
			Name:      name,
			UnitPrice: price,
			VATRate:   rate,
		}, nil
	}
}

func saleItemFromProduct(p *domain.Product) domain.SaleItem {
	stock := p.Stock
	return domain.SaleItem{
		Key:       domain.ByProduct(p.ID, p.SKU),
		Name:      p.Name,
		UnitPrice: p.Price,
		VATRate:   p.VATRate,
		Category:  p.Category,
		Stock:     &stock,
	}
}

type lineRef struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
}

func (ref lineRef) key() domain.LineKey {
	return domain.LineKey{
		ProductID: strings.TrimSpace(ref.ProductID),
		SKU:       strings.TrimSpace(ref.SKU),
	}
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var ref lineRef
	if err := decodeJSON(r, &ref); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a.cart.RemoveItem(ref.key())
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		lineRef
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.cart.SetQuantity(req.key(), req.Quantity); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleLineDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		lineRef
		Value string `json:"value"`
		Type  string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.cart.SetDiscount(req.key(), req.Value, domain.DiscountType(req.Type)); err != nil {
		writeCartError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleTransactionDiscount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Value string `json:"value"`
		Type  string `json:"type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a.cart.SetTransactionDiscount(req.Value, domain.DiscountType(req.Type))
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		CustomerID string `json:"customer_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a.cart.SetCustomer(req.CustomerID)
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleSwitchStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		StoreID string `json:"store_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	a.cart.SwitchStore(strings.TrimSpace(req.StoreID))
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	a.cart.Clear()
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleHold(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		held, err := a.cart.ListHeld(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"held": held})
	case http.MethodPost:
		var req struct {
			Note string `json:"note"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		held, err := a.cart.Hold(r.Context(), req.Note)
		if err != nil {
			writeCartError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"held": held})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		HoldID string `json:"hold_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.HoldID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("hold_id required"))
		return
	}

	if err := a.cart.ResumeHeld(r.Context(), strings.TrimSpace(req.HoldID)); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, snapshot.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cart.View())
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers()})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		cashier, err := a.auth.CreateCashier(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": a.events.Recent()})
}

// writeCartError maps cart sentinel errors onto HTTP statuses. Validation
// failures are 422, stock rejections 409, missing lines 404.
func writeCartError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		status = http.StatusConflict
	case errors.Is(err, cart.ErrLineNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cart.ErrNoStoreSelected),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrStoreMismatch),
		errors.Is(err, cart.ErrEmptyCart):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, err)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

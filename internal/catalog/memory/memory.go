package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"lumipos/backend/internal/catalog"
	"lumipos/backend/internal/domain"
)

// Repo is a seeded in-memory catalog for dev mode and tests.
type Repo struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	stock           map[string]map[string]int
	vatConfigs      []domain.VATConfig
	stores          map[string]domain.StoreContext
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial user accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-catalog] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-catalog] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func NewSeeded() *Repo {
	products := []domain.Product{
		{ID: "prod-001", SKU: "SKU-ESP-01", Name: "Espresso Beans 1kg", Category: "beverage", Price: price("18.50"), VATRate: decimal.Zero, Active: true},
		{ID: "prod-002", SKU: "SKU-MLK-01", Name: "Whole Milk 1L", Category: "dairy", Price: price("1.80"), VATRate: decimal.Zero, Active: true},
		{ID: "prod-003", SKU: "SKU-BRD-01", Name: "Sourdough Loaf", Category: "bakery", Price: price("4.20"), VATRate: decimal.Zero, Active: true},
		{ID: "prod-004", SKU: "SKU-CHC-01", Name: "Dark Chocolate Bar", Category: "snack", Price: price("3.10"), VATRate: price("21"), Active: true},
		{ID: "prod-005", SKU: "SKU-WTR-01", Name: "Mineral Water 600ml", Category: "beverage", Price: price("0.90"), VATRate: decimal.Zero, Active: true},
		{ID: "prod-006", SKU: "SKU-SOA-01", Name: "Hand Soap", Category: "household", Price: price("2.60"), VATRate: price("21"), Active: true},
		{ID: "prod-007", SKU: "SKU-TEA-01", Name: "Green Tea 20ct", Category: "beverage", Price: price("5.40"), VATRate: decimal.Zero, Active: true},
		{ID: "prod-008", SKU: "SKU-RIC-01", Name: "Jasmine Rice 5kg", Category: "grocery", Price: price("12.75"), VATRate: decimal.Zero, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	mainStock := make(map[string]int, len(products))
	annexStock := make(map[string]int, len(products))
	for _, p := range products {
		productMap[p.ID] = p
		mainStock[p.ID] = 40
		annexStock[p.ID] = 15
	}

	return &Repo{
		products: productMap,
		stock: map[string]map[string]int{
			"store-main":  mainStock,
			"store-annex": annexStock,
		},
		vatConfigs: []domain.VATConfig{
			{StoreID: "store-main", Category: "beverage", Rate: price("8"), Active: true},
			{StoreID: "store-main", Category: "bakery", Rate: price("6"), Active: true},
			{StoreID: "store-annex", Category: "beverage", Rate: price("9"), Active: true},
			{StoreID: "store-main", Category: "tobacco", Rate: price("30"), Active: false},
		},
		stores: map[string]domain.StoreContext{
			"store-main":  {ID: "store-main", DefaultVATRate: price("11")},
			"store-annex": {ID: "store-annex", DefaultVATRate: price("11")},
		},
		usersByUsername: seedUsers(),
	}
}

func (r *Repo) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		if !p.Active {
			continue
		}
		p.Stock = r.stock[storeID][p.ID]
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (r *Repo) GetProduct(_ context.Context, storeID string, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok || !p.Active {
		return nil, catalog.ErrNotFound
	}
	p.Stock = r.stock[storeID][p.ID]
	return &p, nil
}

func (r *Repo) GetProductBySKU(_ context.Context, storeID string, sku string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.Active && strings.EqualFold(p.SKU, sku) {
			p.Stock = r.stock[storeID][p.ID]
			return &p, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (r *Repo) GetStockLevels(_ context.Context, storeID string, ids []string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	levels := make(map[string]int, len(ids))
	storeStock := r.stock[storeID]
	for _, id := range ids {
		if qty, ok := storeStock[id]; ok {
			levels[id] = qty
		}
	}
	return levels, nil
}

func (r *Repo) ListActiveVATConfigs(_ context.Context, storeID string) ([]domain.VATConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]domain.VATConfig, 0, len(r.vatConfigs))
	for _, cfg := range r.vatConfigs {
		if cfg.Active && cfg.StoreID == storeID {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

func (r *Repo) GetStore(_ context.Context, id string) (*domain.StoreContext, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, ok := r.stores[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &store, nil
}

// SetStock overrides one stock level, simulating an external inventory
// change between reconciliation passes.
func (r *Repo) SetStock(storeID string, productID string, qty int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stock[storeID] == nil {
		r.stock[storeID] = make(map[string]int)
	}
	r.stock[storeID][productID] = qty
}

func (r *Repo) CreateUser(_ context.Context, user domain.UserAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return catalog.ErrInvalid
	}
	if _, exists := r.usersByUsername[username]; exists {
		return catalog.ErrInvalid
	}
	user.Username = username
	r.usersByUsername[username] = user
	return nil
}

func (r *Repo) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(r.usersByUsername))
	for _, user := range r.usersByUsername {
		users = append(users, user)
	}
	return users, nil
}

func (r *Repo) UpdateUserPassword(_ context.Context, username string, password string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByUsername[username]
	if !ok {
		return catalog.ErrNotFound
	}
	user.Password = password
	r.usersByUsername[username] = user
	return nil
}

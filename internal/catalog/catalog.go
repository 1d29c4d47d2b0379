package catalog

import (
	"context"
	"errors"

	"lumipos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid catalog record")
)

// Repository is the read side of the product catalog plus the small set of
// records the cart core and auth layer consume: per-store stock levels, VAT
// configurations, the store directory, and user accounts.
type Repository interface {
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, storeID string, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, storeID string, sku string) (*domain.Product, error)
	GetStockLevels(ctx context.Context, storeID string, ids []string) (map[string]int, error)
	ListActiveVATConfigs(ctx context.Context, storeID string) ([]domain.VATConfig, error)
	GetStore(ctx context.Context, id string) (*domain.StoreContext, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lumipos/backend/internal/catalog"
	"lumipos/backend/internal/domain"
)

type Repo struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Repo, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repo{db: db}, nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.sku, p.name, p.category, p.price, p.vat_rate, p.active,
		       COALESCE(s.qty, 0)
		FROM products p
		LEFT JOIN stock_levels s ON s.product_id = p.id AND s.store_id = $1
		WHERE p.active = true
		ORDER BY p.category, p.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.VATRate, &p.Active, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *Repo) GetProduct(ctx context.Context, storeID string, id string) (*domain.Product, error) {
	return r.getProduct(ctx, storeID, `p.id = $2`, id)
}

func (r *Repo) GetProductBySKU(ctx context.Context, storeID string, sku string) (*domain.Product, error) {
	return r.getProduct(ctx, storeID, `upper(p.sku) = upper($2)`, sku)
}

func (r *Repo) getProduct(ctx context.Context, storeID string, where string, arg string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT p.id, p.sku, p.name, p.category, p.price, p.vat_rate, p.active,
		       COALESCE(s.qty, 0)
		FROM products p
		LEFT JOIN stock_levels s ON s.product_id = p.id AND s.store_id = $1
		WHERE p.active = true AND `+where+`
	`, storeID, arg).Scan(&p.ID, &p.SKU, &p.Name, &p.Category, &p.Price, &p.VATRate, &p.Active, &p.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetStockLevels(ctx context.Context, storeID string, ids []string) (map[string]int, error) {
	levels := make(map[string]int, len(ids))
	if len(ids) == 0 {
		return levels, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM stock_levels
		WHERE store_id = $1 AND product_id = ANY($2)
	`, storeID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		levels[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return levels, nil
}

func (r *Repo) ListActiveVATConfigs(ctx context.Context, storeID string) ([]domain.VATConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT store_id, category, rate, active
		FROM vat_configurations
		WHERE active = true AND store_id = $1
		ORDER BY category
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]domain.VATConfig, 0, 16)
	for rows.Next() {
		var cfg domain.VATConfig
		if err := rows.Scan(&cfg.StoreID, &cfg.Category, &cfg.Rate, &cfg.Active); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return configs, nil
}

func (r *Repo) GetStore(ctx context.Context, id string) (*domain.StoreContext, error) {
	var store domain.StoreContext
	err := r.db.QueryRowContext(ctx, `
		SELECT id, default_vat_rate
		FROM stores
		WHERE id = $1
	`, id).Scan(&store.ID, &store.DefaultVATRate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, err
	}
	return &store, nil
}

func (r *Repo) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return catalog.ErrInvalid
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return err
}

func (r *Repo) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *Repo) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

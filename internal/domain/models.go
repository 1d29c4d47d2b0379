package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineKey identifies a cart line. The tag is ProductID: when set, the line
// references a tracked catalog product (SKU may be carried alongside for
// lookup by either handle); when empty, the line is an ad-hoc item keyed by
// a raw SKU string. Ad-hoc lines are exempt from stock validation.
type LineKey struct {
	ProductID string `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
}

func ByProduct(id, sku string) LineKey {
	return LineKey{ProductID: id, SKU: sku}
}

func AdHoc(sku string) LineKey {
	return LineKey{SKU: sku}
}

// IsProduct reports whether the key references a tracked catalog product.
func (k LineKey) IsProduct() bool {
	return k.ProductID != ""
}

// Matches compares two keys: product ids win when both sides carry one,
// otherwise the comparison falls back to the SKU.
func (k LineKey) Matches(other LineKey) bool {
	if k.ProductID != "" && other.ProductID != "" {
		return k.ProductID == other.ProductID
	}
	return k.SKU != "" && k.SKU == other.SKU
}

func (k LineKey) String() string {
	if k.ProductID != "" {
		return "product:" + k.ProductID
	}
	return "sku:" + k.SKU
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// LineDiscount is a discount scoped to a single cart line.
type LineDiscount struct {
	Amount decimal.Decimal `json:"amount"`
	Type   DiscountType    `json:"type"`
}

// TransactionDiscount applies once to the whole cart's grand total.
// OriginalValue keeps the raw operator input for display and auditing.
type TransactionDiscount struct {
	Amount        decimal.Decimal `json:"amount"`
	Type          DiscountType    `json:"type"`
	OriginalValue string          `json:"original_value"`
}

// CartLine is one priced row in an in-progress sale. Line totals are always
// re-derived from UnitPrice x Quantity plus the discount fields; they are
// never stored.
type CartLine struct {
	Key           LineKey         `json:"key"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Quantity      int             `json:"quantity"`
	Category      string          `json:"category,omitempty"`
	VATRate       decimal.Decimal `json:"vat_rate"`
	VATSource     string          `json:"vat_source,omitempty"`
	Discount      *LineDiscount   `json:"discount,omitempty"`
	StoreID       string          `json:"store_id"`
	StockSnapshot *int            `json:"stock_snapshot,omitempty"`
}

// CartSnapshot is the durable representation of the in-progress sale,
// written to the snapshot store after every mutation.
type CartSnapshot struct {
	Lines                []CartLine           `json:"lines"`
	CustomerID           string               `json:"customer_id,omitempty"`
	StoreID              string               `json:"store_id,omitempty"`
	TransactionNumber    string               `json:"transaction_number,omitempty"`
	ResumedTransactionID string               `json:"resumed_transaction_id,omitempty"`
	TransactionDiscount  *TransactionDiscount `json:"transaction_discount,omitempty"`
	SavedAt              time.Time            `json:"saved_at"`
}

// HeldSale is a parked cart snapshot that can be resumed later.
type HeldSale struct {
	ID       string       `json:"id"`
	Note     string       `json:"note,omitempty"`
	HeldAt   time.Time    `json:"held_at"`
	Snapshot CartSnapshot `json:"snapshot"`
}

type Product struct {
	ID       string          `json:"id"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	VATRate  decimal.Decimal `json:"vat_rate"`
	Active   bool            `json:"active"`
}

// SaleItem is the add-to-cart input: a product pulled from the catalog or an
// ad-hoc item keyed by SKU. Stock is the availability observed at lookup
// time; nil means unknown (always the case for ad-hoc items).
type SaleItem struct {
	Key       LineKey         `json:"key"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	VATRate   decimal.Decimal `json:"vat_rate"`
	Category  string          `json:"category"`
	Stock     *int            `json:"stock,omitempty"`
}

// VATConfig is a per-store, per-category tax rate override.
type VATConfig struct {
	StoreID  string          `json:"store_id"`
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	Active   bool            `json:"active"`
}

type StoreContext struct {
	ID             string          `json:"id"`
	DefaultVATRate decimal.Decimal `json:"default_vat_rate"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CashierUser is the public projection of a user account; it never carries
// the password hash.
type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// CartLineView is a presentation row: monetary fields rounded to two
// decimals. Rounding happens only here, never in the pricing core.
type CartLineView struct {
	Key            LineKey `json:"key"`
	Name           string  `json:"name"`
	UnitPrice      string  `json:"unit_price"`
	Quantity       int     `json:"quantity"`
	VATRate        string  `json:"vat_rate"`
	VATSource      string  `json:"vat_source,omitempty"`
	DiscountAmount string  `json:"discount_amount,omitempty"`
	DiscountType   string  `json:"discount_type,omitempty"`
	Total          string  `json:"total"`
}

type CartView struct {
	Lines                []CartLineView `json:"lines"`
	StoreID              string         `json:"store_id,omitempty"`
	CustomerID           string         `json:"customer_id,omitempty"`
	TransactionNumber    string         `json:"transaction_number,omitempty"`
	ResumedTransactionID string         `json:"resumed_transaction_id,omitempty"`
	Subtotal             string         `json:"subtotal"`
	VAT                  string         `json:"vat"`
	TransactionDiscount  string         `json:"transaction_discount,omitempty"`
	GrandTotal           string         `json:"grand_total"`
}

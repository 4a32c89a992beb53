package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// MovementType is the direction of a stock movement
type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// Valid reports whether t is a known movement type
func (t MovementType) Valid() bool {
	return t == MovementIn || t == MovementOut
}

// Signed returns quantity with the sign this movement applies to stock
func (t MovementType) Signed(quantity int64) int64 {
	if t == MovementOut {
		return -quantity
	}
	return quantity
}

// AlertType classifies an alert
type AlertType string

const (
	AlertLowStock  AlertType = "low_stock"
	AlertHighStock AlertType = "high_stock"
	AlertExpired   AlertType = "expired"
)

// Valid reports whether t is a known alert type
func (t AlertType) Valid() bool {
	switch t {
	case AlertLowStock, AlertHighStock, AlertExpired:
		return true
	}
	return false
}

// Product is the registry record for a stocked item
type Product struct {
	ID             string     `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	Name           string     `db:"name" json:"name"`
	Category       string     `db:"category" json:"category"`
	Unit           string     `db:"unit" json:"unit"`
	Description    *string    `db:"description" json:"description,omitempty"`
	MinStock       int64      `db:"min_stock" json:"min_stock"`
	MaxStock       int64      `db:"max_stock" json:"max_stock"`
	CurrentStock   int64      `db:"current_stock" json:"current_stock"`
	Version        int64      `db:"version" json:"version"`
	LastMovementAt *time.Time `db:"last_movement_at" json:"last_movement_at,omitempty"`
	ArchivedAt     *time.Time `db:"archived_at" json:"archived_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLowStock reports whether current stock is below the minimum
func (p *Product) IsLowStock() bool {
	return p.CurrentStock < p.MinStock
}

// IsArchived reports whether the product was archived
func (p *Product) IsArchived() bool {
	return p.ArchivedAt != nil
}

// StockMovement is an immutable ledger entry
type StockMovement struct {
	ID          int64               `db:"id" json:"id"`
	ProductID   string              `db:"product_id" json:"product_id"`
	Type        MovementType        `db:"type" json:"type"`
	Quantity    int64               `db:"quantity" json:"quantity"`
	BeforeStock int64               `db:"before_stock" json:"before_stock"`
	AfterStock  int64               `db:"after_stock" json:"after_stock"`
	OperatorID  string              `db:"operator_id" json:"operator_id"`
	Reason      *string             `db:"reason" json:"reason,omitempty"`
	Supplier    *string             `db:"supplier" json:"supplier,omitempty"`
	Department  *string             `db:"department" json:"department,omitempty"`
	BatchNo     *string             `db:"batch_no" json:"batch_no,omitempty"`
	UnitPrice   decimal.NullDecimal `db:"unit_price" json:"unit_price"`
	TotalAmount decimal.NullDecimal `db:"total_amount" json:"total_amount"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`

	// Populated by joins on read
	ProductCode  string `db:"product_code" json:"product_code,omitempty"`
	ProductName  string `db:"product_name" json:"product_name,omitempty"`
	ProductUnit  string `db:"product_unit" json:"product_unit,omitempty"`
	OperatorName string `db:"operator_name" json:"operator_name,omitempty"`
}

// Alert is a derived threshold notification
type Alert struct {
	ID        string    `db:"id" json:"id"`
	ProductID string    `db:"product_id" json:"product_id"`
	Type      AlertType `db:"type" json:"type"`
	Message   string    `db:"message" json:"message"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	ProductName string `db:"product_name" json:"product_name,omitempty"`
}

// Operator is a cached identity used to label movements
type Operator struct {
	UserID    string  `db:"user_id" json:"user_id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Email     *string `db:"email" json:"email,omitempty"`
	RoleName  *string `db:"role_name" json:"role_name,omitempty"`
}

// FullName returns the operator's display name
func (o *Operator) FullName() string {
	if o.LastName == "" {
		return o.FirstName
	}
	return o.FirstName + " " + o.LastName
}

// ProductFilter selects products for listing
type ProductFilter struct {
	Keyword      string
	Category     string
	LowStockOnly bool
	Page         int
	PerPage      int
}

// MovementFilter selects ledger entries. From is inclusive, To exclusive.
type MovementFilter struct {
	Type       MovementType
	ProductID  string
	OperatorID string
	From       *time.Time
	To         *time.Time
	Keyword    string
	Page       int
	PerPage    int
}

// AlertFilter selects alerts for listing
type AlertFilter struct {
	Type      AlertType
	IsRead    *bool
	ProductID string
	Page      int
	PerPage   int
}

// ProductStats summarises the active registry
type ProductStats struct {
	TotalProducts int64 `db:"total_products" json:"total_products"`
	LowStockCount int64 `db:"low_stock_count" json:"low_stock_count"`
	TotalStock    int64 `db:"total_stock" json:"total_stock"`
}

// MovementTotals counts and sums movements per direction
type MovementTotals struct {
	InCount     int64 `db:"in_count" json:"in_count"`
	OutCount    int64 `db:"out_count" json:"out_count"`
	InQuantity  int64 `db:"in_quantity" json:"in_quantity"`
	OutQuantity int64 `db:"out_quantity" json:"out_quantity"`
}

// DailyTotals are movement totals for one calendar day (YYYY-MM-DD)
type DailyTotals struct {
	Day string `db:"day" json:"day"`
	MovementTotals
}

// CategoryStock is the registry breakdown for one category
type CategoryStock struct {
	Category     string `db:"category" json:"category"`
	ProductCount int64  `db:"product_count" json:"product_count"`
	TotalStock   int64  `db:"total_stock" json:"total_stock"`
}

// CategoryMovement sums movement quantities for one category
type CategoryMovement struct {
	Category    string `db:"category" json:"category"`
	InQuantity  int64  `db:"in_quantity" json:"in_quantity"`
	OutQuantity int64  `db:"out_quantity" json:"out_quantity"`
}

// ProductVolume is the moved volume of one product
type ProductVolume struct {
	ProductID   string `db:"product_id" json:"product_id"`
	Code        string `db:"code" json:"code"`
	Name        string `db:"name" json:"name"`
	InQuantity  int64  `db:"in_quantity" json:"in_quantity"`
	OutQuantity int64  `db:"out_quantity" json:"out_quantity"`
	Volume      int64  `db:"volume" json:"volume"`
}

// StockDrift is a product whose registry stock disagrees with its latest movement
type StockDrift struct {
	ProductID    string `db:"product_id" json:"product_id"`
	Code         string `db:"code" json:"code"`
	CurrentStock int64  `db:"current_stock" json:"current_stock"`
	LedgerStock  int64  `db:"ledger_stock" json:"ledger_stock"`
	MovementID   int64  `db:"movement_id" json:"movement_id"`
}

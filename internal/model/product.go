package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row the sale engine reads prices, cost and tax from.
// Catalog CRUD lives outside this service; only StockQuantity is written here.
type Product struct {
	ID        int64           `gorm:"primaryKey"`
	SKU       string          `gorm:"column:sku;uniqueIndex;not null"`
	Name      string          `gorm:"index;not null"`
	Category  string          `gorm:"not null;default:''"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UnitCost  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// TaxRate is a percentage, e.g. 20 for standard-rate VAT
	TaxRate       decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	StockQuantity int             `gorm:"not null;default:0"`
	ReorderLevel  int             `gorm:"not null;default:0"`
	// TrackStock=false for bespoke work and services; the ledger ignores them.
	TrackStock    bool   `gorm:"not null"`
	IsConsignment bool   `gorm:"not null;default:false"`
	SupplierID    *int64 `gorm:"index"`
	Active        bool   `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Supplier *Supplier `gorm:"foreignKey:SupplierID"`
}

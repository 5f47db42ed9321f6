package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsignmentSettlement is the amount owed to a consignor for one product sold
// on one sale. PayoutAmount follows the cost snapshot of the sale's lines:
// set at commit, recomputed by an edit while unpaid. PaidAt, once set, is
// never cleared.
type ConsignmentSettlement struct {
	ID           int64           `gorm:"primaryKey"`
	ProductID    int64           `gorm:"not null;uniqueIndex:idx_settlement_product_sale"`
	SaleID       int64           `gorm:"not null;uniqueIndex:idx_settlement_product_sale"`
	SupplierID   int64           `gorm:"not null;index"`
	SalePrice    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PayoutAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaidAt       *time.Time
	// CancelledAt is set when the sale is voided before the consignor was paid.
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

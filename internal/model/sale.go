package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods are labels only; no gateway is involved.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentOther    = "other"
)

// Sale is the committed header of a transaction.
// Total always equals Subtotal - DiscountTotal + TaxTotal; consumers net
// trade-ins themselves as Total - PartExchangeTotal.
type Sale struct {
	ID              int64  `gorm:"primaryKey"`
	StaffID         string `gorm:"type:varchar(64);index;not null"`
	StaffMemberName string `gorm:"not null"`
	Payment         string `gorm:"type:varchar(20);not null"`

	Subtotal          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	DiscountTotal     decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxTotal          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	PartExchangeTotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Total             decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	// Cart-level discount as entered, kept so an edit can recompute the same discount.
	DiscountType  *string         `gorm:"type:varchar(20)"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`

	CustomerID    *int64 `gorm:"index"`
	CustomerName  *string
	CustomerEmail *string
	Notes         *string
	SignatureData *string
	LocationID    *int64 `gorm:"index"`

	IsVoided   bool `gorm:"not null;default:false;index"`
	VoidReason *string
	VoidedAt   *time.Time
	EditedAt   *time.Time

	CommissionOverride       *decimal.Decimal `gorm:"type:decimal(12,2)"`
	CommissionOverrideReason *string

	// ClientRef deduplicates a double-submitted cart from the same terminal.
	ClientRef *string `gorm:"type:varchar(64);uniqueIndex"`
	// Version is bumped by every edit/void/override; writes are conditional on it.
	Version int `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Items         []SaleLineItem          `gorm:"foreignKey:SaleID"`
	PartExchanges []PartExchangeItem      `gorm:"foreignKey:SaleID"`
	Settlements   []ConsignmentSettlement `gorm:"foreignKey:SaleID"`
}

// NetTotal is the amount the customer actually settled after trade-ins.
func (s *Sale) NetTotal() decimal.Decimal {
	return s.Total.Sub(s.PartExchangeTotal)
}

// SaleLineItem snapshots price, cost and tax at sale time. UnitCost and TaxRate
// never change after commit, even when the product row does.
type SaleLineItem struct {
	ID               int64           `gorm:"primaryKey"`
	SaleID           int64           `gorm:"index;not null"`
	ProductID        int64           `gorm:"index;not null"`
	Quantity         int             `gorm:"not null"`
	OriginalQuantity int             `gorm:"not null"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UnitCost         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Discount         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	TaxRate          decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

func (SaleLineItem) TableName() string { return "sale_items" }

// Revenue is quantity × unit price less the line discount.
func (i SaleLineItem) Revenue() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.Discount)
}

// Cost is quantity × the cost snapshot.
func (i SaleLineItem) Cost() decimal.Decimal {
	return i.UnitCost.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i SaleLineItem) Profit() decimal.Decimal {
	return i.Revenue().Sub(i.Cost())
}

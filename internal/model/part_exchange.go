package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Part-exchange lifecycle. Intake (pending → linked/discarded) is handled
// by the stock intake workflow, not by the sale engine.
const (
	PartExchangePending   = "pending"
	PartExchangeLinked    = "linked"
	PartExchangeDiscarded = "discarded"
)

// PartExchangeItem is a trade-in surrendered by the customer as part payment.
// ProductID is only set once the item is linked into the catalog.
type PartExchangeItem struct {
	ID                 int64  `gorm:"primaryKey"`
	SaleID             *int64 `gorm:"index"`
	Title              string `gorm:"not null"`
	Category           *string
	Description        *string
	Serial             *string
	Allowance          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CustomerName       *string
	CustomerContact    *string
	CustomerSupplierID *int64
	Notes              *string
	Status             string `gorm:"type:varchar(20);not null;default:'pending'"`
	ProductID          *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (PartExchangeItem) TableName() string { return "part_exchanges" }

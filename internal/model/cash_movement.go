package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CashMovementSale = "sale"
	CashMovementVoid = "void"
	// CashMovementEdit brings a cash sale's drawer entries in line with its
	// edited net total.
	CashMovementEdit = "edit"
)

// CashMovement is an immutable cash-drawer entry. Movements are never
// modified or deleted; an edit writes the difference and a void the inverse.
type CashMovement struct {
	ID          int64           `gorm:"primaryKey"`
	LocationID  *int64          `gorm:"index"`
	Kind        string          `gorm:"type:varchar(20);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description string          `gorm:"not null"`
	SaleID      *int64          `gorm:"index"`
	StaffID     string          `gorm:"type:varchar(64)"`
	CreatedAt   time.Time
}

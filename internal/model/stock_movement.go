package model

import "time"

// Stock movement kinds.
const (
	StockMovementSale        = "sale"
	StockMovementEdit        = "edit"
	StockMovementVoidRestore = "void_restore"
)

// StockMovement records every stock change the sale engine makes.
type StockMovement struct {
	ID          int64  `gorm:"primaryKey"`
	ProductID   int64  `gorm:"index;not null"`
	Kind        string `gorm:"type:varchar(20);not null"`
	Quantity    int    `gorm:"not null"` // positive = in, negative = out
	StockBefore int    `gorm:"not null"`
	StockAfter  int    `gorm:"not null"`
	Reason      string
	SaleID      *int64 `gorm:"index"`
	CreatedAt   time.Time
}

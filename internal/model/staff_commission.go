package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CommissionBasisRevenue = "revenue"
	CommissionBasisProfit  = "profit"
)

// StaffCommissionSetting supersedes the global commission defaults for one
// staff member. A nil field falls back to the global value.
type StaffCommissionSetting struct {
	ID              int64            `gorm:"primaryKey"`
	StaffID         string           `gorm:"type:varchar(64);uniqueIndex;not null"`
	CommissionRate  *decimal.Decimal `gorm:"type:decimal(5,2)"`
	CommissionBasis *string          `gorm:"type:varchar(20)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

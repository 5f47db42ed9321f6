package model

import "time"

// Supplier is a trade supplier or a consignor whose stock we sell on their behalf.
type Supplier struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Email     *string
	Phone     *string
	Active    bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

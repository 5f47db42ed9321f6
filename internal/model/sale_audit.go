package model

import "time"

const (
	AuditCommit             = "commit"
	AuditEdit               = "edit"
	AuditVoid               = "void"
	AuditCommissionOverride = "commission_override"
	AuditCommissionCleared  = "commission_override_cleared"
	AuditPartExchangeAdded  = "part_exchange_added"
)

// SaleAuditEntry is an append-only record of a write against a sale.
// Details holds a JSON document describing the change.
type SaleAuditEntry struct {
	ID        int64  `gorm:"primaryKey"`
	SaleID    int64  `gorm:"index;not null"`
	Action    string `gorm:"type:varchar(40);not null"`
	Reason    string
	StaffID   string `gorm:"type:varchar(64)"`
	Details   string `gorm:"type:jsonb"`
	CreatedAt time.Time
}

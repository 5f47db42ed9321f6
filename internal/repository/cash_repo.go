package repository

import (
	"sourcedpos/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashRepository appends to the cash-drawer ledger. Movements are immutable:
// there is no Update or Delete.
type CashRepository interface {
	CreateTx(tx *gorm.DB, m *model.CashMovement) error
	SumBySaleTx(tx *gorm.DB, saleID int64) (decimal.Decimal, error)
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) CreateTx(tx *gorm.DB, m *model.CashMovement) error {
	return tx.Create(m).Error
}

func (r *cashRepo) SumBySaleTx(tx *gorm.DB, saleID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := tx.Model(&model.CashMovement{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("sale_id = ?", saleID).
		Scan(&sum).Error
	return sum, err
}

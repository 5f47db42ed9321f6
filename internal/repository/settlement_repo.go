package repository

import (
	"context"
	"time"

	"sourcedpos/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SettlementRepository interface {
	// CreateTx fails on the (product_id, sale_id) unique index rather than
	// skipping a duplicate.
	CreateTx(tx *gorm.DB, s *model.ConsignmentSettlement) error
	ListBySale(ctx context.Context, saleID int64) ([]model.ConsignmentSettlement, error)
	// CancelUnpaidTx marks every unpaid, uncancelled settlement of the sale
	// and returns how many paid ones were left alone.
	CancelUnpaidTx(tx *gorm.DB, saleID int64, at time.Time) (paid int64, err error)
	// UpdateAmountsTx rewrites price and payout of an open settlement.
	// ErrSettlementClosed if it is paid or cancelled.
	UpdateAmountsTx(tx *gorm.DB, id int64, salePrice, payout decimal.Decimal) error
}

type settlementRepo struct{ db *gorm.DB }

func NewSettlementRepository(db *gorm.DB) SettlementRepository { return &settlementRepo{db: db} }

func (r *settlementRepo) CreateTx(tx *gorm.DB, s *model.ConsignmentSettlement) error {
	return tx.Create(s).Error
}

func (r *settlementRepo) ListBySale(ctx context.Context, saleID int64) ([]model.ConsignmentSettlement, error) {
	var out []model.ConsignmentSettlement
	err := r.db.WithContext(ctx).Where("sale_id = ?", saleID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *settlementRepo) CancelUnpaidTx(tx *gorm.DB, saleID int64, at time.Time) (int64, error) {
	if err := tx.Model(&model.ConsignmentSettlement{}).
		Where("sale_id = ? AND paid_at IS NULL AND cancelled_at IS NULL", saleID).
		Update("cancelled_at", at).Error; err != nil {
		return 0, err
	}
	var paid int64
	err := tx.Model(&model.ConsignmentSettlement{}).
		Where("sale_id = ? AND paid_at IS NOT NULL", saleID).
		Count(&paid).Error
	return paid, err
}

func (r *settlementRepo) UpdateAmountsTx(tx *gorm.DB, id int64, salePrice, payout decimal.Decimal) error {
	res := tx.Model(&model.ConsignmentSettlement{}).
		Where("id = ? AND paid_at IS NULL AND cancelled_at IS NULL", id).
		Updates(map[string]any{
			"sale_price":    salePrice,
			"payout_amount": payout,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSettlementClosed
	}
	return nil
}

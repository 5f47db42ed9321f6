package repository

import (
	"context"

	"sourcedpos/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	CreateTx(tx *gorm.DB, e *model.SaleAuditEntry) error
	ListBySale(ctx context.Context, saleID int64) ([]model.SaleAuditEntry, error)
}

type auditRepo struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepo{db: db} }

func (r *auditRepo) CreateTx(tx *gorm.DB, e *model.SaleAuditEntry) error {
	return tx.Create(e).Error
}

func (r *auditRepo) ListBySale(ctx context.Context, saleID int64) ([]model.SaleAuditEntry, error) {
	var entries []model.SaleAuditEntry
	err := r.db.WithContext(ctx).Where("sale_id = ?", saleID).Order("id ASC").Find(&entries).Error
	return entries, err
}

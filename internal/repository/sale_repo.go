package repository

import (
	"context"
	"time"

	"sourcedpos/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleQuery narrows List and Summary. Nil fields are not filtered on.
type SaleQuery struct {
	From       *time.Time
	To         *time.Time // exclusive
	StaffID    string
	LocationID *int64
	Voided     *bool
	Page       int
	Limit      int
}

// SaleTotals aggregates non-voided sales.
type SaleTotals struct {
	Count             int64
	Subtotal          decimal.Decimal
	DiscountTotal     decimal.Decimal
	TaxTotal          decimal.Decimal
	Total             decimal.Decimal
	PartExchangeTotal decimal.Decimal
}

// SaleHeaderUpdate is the set of header columns an edit or late
// part-exchange rewrites. Version is bumped by the repository.
type SaleHeaderUpdate struct {
	Subtotal          decimal.Decimal
	DiscountTotal     decimal.Decimal
	TaxTotal          decimal.Decimal
	Total             decimal.Decimal
	PartExchangeTotal decimal.Decimal
	Notes             *string
	EditedAt          *time.Time
}

type SaleRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Sale, error)
	FindByClientRef(ctx context.Context, ref string) (*model.Sale, error)
	List(ctx context.Context, q SaleQuery) ([]model.Sale, int64, error)
	Summary(ctx context.Context, q SaleQuery) (SaleTotals, error)
	// Used inside transactions; callers must pass the tx instance.

	// CreateTx inserts the header together with its Items and PartExchanges.
	CreateTx(tx *gorm.DB, s *model.Sale) error
	UpdateItemTx(tx *gorm.DB, item *model.SaleLineItem) error
	// UpdateHeaderTx writes totals only if the stored version still equals
	// version and the sale is not voided. ErrVersionConflict otherwise.
	UpdateHeaderTx(tx *gorm.DB, id int64, version int, u SaleHeaderUpdate) error
	// MarkVoidedTx flips is_voided under the same version guard.
	MarkVoidedTx(tx *gorm.DB, id int64, version int, reason string, at time.Time) error
	// UpdateCommissionOverrideTx sets or (with nil) clears the override.
	UpdateCommissionOverrideTx(tx *gorm.DB, id int64, version int, amount *decimal.Decimal, reason *string) error

	DB() *gorm.DB
}

type saleRepo struct{ db *gorm.DB }

func NewSaleRepository(db *gorm.DB) SaleRepository { return &saleRepo{db: db} }

func (r *saleRepo) DB() *gorm.DB { return r.db }

func (r *saleRepo) CreateTx(tx *gorm.DB, s *model.Sale) error {
	return tx.Omit("Settlements").Create(s).Error
}

func (r *saleRepo) FindByID(ctx context.Context, id int64) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items.Product").
		Preload("PartExchanges").
		Preload("Settlements").
		First(&s, id).Error
	return &s, err
}

func (r *saleRepo) FindByClientRef(ctx context.Context, ref string) (*model.Sale, error) {
	var s model.Sale
	err := r.db.WithContext(ctx).
		Preload("Items.Product").
		Preload("PartExchanges").
		Preload("Settlements").
		Where("client_ref = ?", ref).
		First(&s).Error
	return &s, err
}

func (r *saleRepo) scoped(ctx context.Context, q SaleQuery) *gorm.DB {
	db := r.db.WithContext(ctx).Model(&model.Sale{})
	if q.From != nil {
		db = db.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("created_at < ?", *q.To)
	}
	if q.StaffID != "" {
		db = db.Where("staff_id = ?", q.StaffID)
	}
	if q.LocationID != nil {
		db = db.Where("location_id = ?", *q.LocationID)
	}
	if q.Voided != nil {
		db = db.Where("is_voided = ?", *q.Voided)
	}
	return db
}

func (r *saleRepo) List(ctx context.Context, q SaleQuery) ([]model.Sale, int64, error) {
	var sales []model.Sale
	var total int64

	db := r.scoped(ctx, q)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if q.Limit > 0 {
		db = db.Offset((q.Page - 1) * q.Limit).Limit(q.Limit)
	}
	err := db.Preload("Items.Product").
		Preload("PartExchanges").
		Order("created_at DESC").
		Find(&sales).Error
	return sales, total, err
}

func (r *saleRepo) Summary(ctx context.Context, q SaleQuery) (SaleTotals, error) {
	notVoided := false
	q.Voided = &notVoided

	var t SaleTotals
	err := r.scoped(ctx, q).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(subtotal), 0) AS subtotal,
			COALESCE(SUM(discount_total), 0) AS discount_total,
			COALESCE(SUM(tax_total), 0) AS tax_total,
			COALESCE(SUM(total), 0) AS total,
			COALESCE(SUM(part_exchange_total), 0) AS part_exchange_total`).
		Scan(&t).Error
	return t, err
}

func (r *saleRepo) UpdateItemTx(tx *gorm.DB, item *model.SaleLineItem) error {
	return tx.Model(&model.SaleLineItem{}).
		Where("id = ? AND sale_id = ?", item.ID, item.SaleID).
		Updates(map[string]any{
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
			"discount":   item.Discount,
			"updated_at": time.Now(),
		}).Error
}

func (r *saleRepo) UpdateHeaderTx(tx *gorm.DB, id int64, version int, u SaleHeaderUpdate) error {
	res := tx.Model(&model.Sale{}).
		Where("id = ? AND version = ? AND is_voided = false", id, version).
		Updates(map[string]any{
			"subtotal":            u.Subtotal,
			"discount_total":      u.DiscountTotal,
			"tax_total":           u.TaxTotal,
			"total":               u.Total,
			"part_exchange_total": u.PartExchangeTotal,
			"notes":               u.Notes,
			"edited_at":           u.EditedAt,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *saleRepo) MarkVoidedTx(tx *gorm.DB, id int64, version int, reason string, at time.Time) error {
	res := tx.Model(&model.Sale{}).
		Where("id = ? AND version = ? AND is_voided = false", id, version).
		Updates(map[string]any{
			"is_voided":   true,
			"void_reason": reason,
			"voided_at":   at,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *saleRepo) UpdateCommissionOverrideTx(tx *gorm.DB, id int64, version int, amount *decimal.Decimal, reason *string) error {
	res := tx.Model(&model.Sale{}).
		Where("id = ? AND version = ? AND is_voided = false", id, version).
		Updates(map[string]any{
			"commission_override":        amount,
			"commission_override_reason": reason,
			"version":                    gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

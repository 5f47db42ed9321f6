package repository

import (
	"context"

	"sourcedpos/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository is the stock ledger's storage. Catalog writes happen
// elsewhere; the sale engine only reads products and moves stock.
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error)
	ListLowStock(ctx context.Context, ids []int64) ([]model.Product, error)

	// Used inside transactions; callers must pass the tx instance.

	// DecrementStockTx removes qty units only if at least qty are on hand and
	// returns the quantity left. ErrStockUnavailable when the guard fails.
	DecrementStockTx(tx *gorm.DB, id int64, qty int) (int, error)
	// RestoreStockTx puts qty units back and returns the new quantity.
	RestoreStockTx(tx *gorm.DB, id int64, qty int) (int, error)

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) DB() *gorm.DB { return r.db }

func (r *productRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).First(&p, id).Error
	return &p, err
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []int64) (map[int64]*model.Product, error) {
	var products []model.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	out := make(map[int64]*model.Product, len(products))
	for i := range products {
		out[products[i].ID] = &products[i]
	}
	return out, nil
}

func (r *productRepo) ListLowStock(ctx context.Context, ids []int64) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND track_stock = true AND active = true AND stock_quantity <= reorder_level", ids).
		Order("stock_quantity ASC").
		Find(&products).Error
	return products, err
}

// DecrementStockTx is the authoritative oversell guard: the WHERE clause and
// the decrement run as one statement, so two terminals racing for the last
// unit cannot both match.
func (r *productRepo) DecrementStockTx(tx *gorm.DB, id int64, qty int) (int, error) {
	var p model.Product
	res := tx.Model(&p).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "stock_quantity"}}}).
		Where("id = ? AND track_stock = true AND stock_quantity >= ?", id, qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrStockUnavailable
	}
	return p.StockQuantity, nil
}

func (r *productRepo) RestoreStockTx(tx *gorm.DB, id int64, qty int) (int, error) {
	var p model.Product
	res := tx.Model(&p).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "stock_quantity"}}}).
		Where("id = ? AND track_stock = true", id).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return p.StockQuantity, nil
}

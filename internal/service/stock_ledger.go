package service

import (
	"context"
	"errors"
	"sort"

	"sourcedpos/internal/model"
	"sourcedpos/internal/repository"

	"gorm.io/gorm"
)

// StockChange is one applied ledger mutation, recorded once the sale it
// belongs to has an ID.
type StockChange struct {
	ProductID   int64
	Quantity    int // signed: negative leaves the shelf
	StockBefore int
	StockAfter  int
}

// StockLedger owns every stock mutation the sale engine performs. Products
// with TrackStock=false are never touched.
type StockLedger interface {
	// Check is the advisory pre-commit read. Quantities are per product.
	Check(ctx context.Context, want map[int64]int, products map[int64]*model.Product) error
	// DecrementTx is the authoritative, conditional decrement. It returns an
	// *InsufficientStockError when the post-condition fails.
	DecrementTx(ctx context.Context, tx *gorm.DB, product *model.Product, qty int) (StockChange, error)
	RestoreTx(ctx context.Context, tx *gorm.DB, product *model.Product, qty int) (StockChange, error)
	// RecordTx writes the movement rows for already-applied changes.
	RecordTx(tx *gorm.DB, changes []StockChange, kind string, saleID int64, reason string) error
}

type stockLedger struct {
	products  repository.ProductRepository
	movements repository.StockMovementRepository
}

func NewStockLedger(products repository.ProductRepository, movements repository.StockMovementRepository) StockLedger {
	return &stockLedger{products: products, movements: movements}
}

func (l *stockLedger) Check(ctx context.Context, want map[int64]int, products map[int64]*model.Product) error {
	ids := make([]int64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		p := products[id]
		if p == nil || !p.TrackStock {
			continue
		}
		if p.StockQuantity < want[id] {
			return &InsufficientStockError{
				ProductID: id, Name: p.Name, Requested: want[id], Available: p.StockQuantity,
			}
		}
	}
	return nil
}

func (l *stockLedger) DecrementTx(ctx context.Context, tx *gorm.DB, p *model.Product, qty int) (StockChange, error) {
	after, err := l.products.DecrementStockTx(tx, p.ID, qty)
	if errors.Is(err, repository.ErrStockUnavailable) {
		available := 0
		if fresh, ferr := l.products.FindByID(ctx, p.ID); ferr == nil {
			available = fresh.StockQuantity
		}
		return StockChange{}, &InsufficientStockError{
			ProductID: p.ID, Name: p.Name, Requested: qty, Available: available,
		}
	}
	if err != nil {
		return StockChange{}, err
	}
	return StockChange{ProductID: p.ID, Quantity: -qty, StockBefore: after + qty, StockAfter: after}, nil
}

func (l *stockLedger) RestoreTx(ctx context.Context, tx *gorm.DB, p *model.Product, qty int) (StockChange, error) {
	after, err := l.products.RestoreStockTx(tx, p.ID, qty)
	if err != nil {
		return StockChange{}, err
	}
	return StockChange{ProductID: p.ID, Quantity: qty, StockBefore: after - qty, StockAfter: after}, nil
}

func (l *stockLedger) RecordTx(tx *gorm.DB, changes []StockChange, kind string, saleID int64, reason string) error {
	for _, c := range changes {
		ref := saleID
		mov := &model.StockMovement{
			ProductID:   c.ProductID,
			Kind:        kind,
			Quantity:    c.Quantity,
			StockBefore: c.StockBefore,
			StockAfter:  c.StockAfter,
			Reason:      reason,
			SaleID:      &ref,
		}
		if err := l.movements.CreateTx(tx, mov); err != nil {
			return err
		}
	}
	return nil
}

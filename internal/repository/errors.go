package repository

import "errors"

var (
	// ErrStockUnavailable is returned when a conditional stock decrement
	// matched no row: the product is short, untracked or missing.
	ErrStockUnavailable = errors.New("stock unavailable")

	// ErrVersionConflict is returned when a versioned update matched no row
	// because another session changed the sale first.
	ErrVersionConflict = errors.New("version conflict")

	// ErrSettlementClosed is returned when a settlement was paid or cancelled
	// after it was read.
	ErrSettlementClosed = errors.New("settlement already paid or cancelled")
)

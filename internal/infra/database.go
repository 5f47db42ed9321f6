package infra

import (
	"fmt"

	"sourcedpos/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens the Postgres connection and brings the schema up to date.
// Set debug to log every statement.
func NewDatabase(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations creates or updates every table the sale engine owns, then
// applies the constraints AutoMigrate cannot express. Safe to re-run.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Supplier{},
		&model.Product{},
		&model.Sale{},
		&model.SaleLineItem{},
		&model.PartExchangeItem{},
		&model.ConsignmentSettlement{},
		&model.StaffCommissionSetting{},
		&model.StockMovement{},
		&model.CashMovement{},
		&model.SaleAuditEntry{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// fully handle on its own (check constraints, partial indexes). Each statement
// is guarded so re-running on an already-patched DB is safe.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		// Backstop for the conditional decrement; the ledger never relies on it.
		{"products stock non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_products_stock_non_negative') THEN
    ALTER TABLE products ADD CONSTRAINT chk_products_stock_non_negative CHECK (stock_quantity >= 0);
  END IF;
END $$`},
		{"sale item quantity positive", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_sale_items_quantity_positive') THEN
    ALTER TABLE sale_items ADD CONSTRAINT chk_sale_items_quantity_positive CHECK (quantity > 0);
  END IF;
END $$`},
		{"part exchange allowance positive", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_part_exchanges_allowance_positive') THEN
    ALTER TABLE part_exchanges ADD CONSTRAINT chk_part_exchanges_allowance_positive CHECK (allowance > 0);
  END IF;
END $$`},
		// Consignor payout screen lists what is still owed.
		{"unpaid settlements index",
			`CREATE INDEX IF NOT EXISTS idx_settlements_unpaid
			   ON consignment_settlements (supplier_id)
			   WHERE paid_at IS NULL AND cancelled_at IS NULL`},
		{"active sales by day index",
			`CREATE INDEX IF NOT EXISTS idx_sales_active_created
			   ON sales (created_at)
			   WHERE is_voided = false`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}

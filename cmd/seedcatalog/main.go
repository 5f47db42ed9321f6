// seedcatalog loads a small demo catalog (one consignor, a few pieces).
// Usage: go run ./cmd/seedcatalog
package main

import (
	"fmt"
	"log"

	"sourcedpos/internal/config"
	"sourcedpos/internal/infra"
	"sourcedpos/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := infra.NewDatabase(cfg.DatabaseURL, false)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}

	supplier := model.Supplier{Name: "Hatton Estate Consignments"}
	if err := db.Where(model.Supplier{Name: supplier.Name}).FirstOrCreate(&supplier).Error; err != nil {
		log.Fatalf("supplier: %v", err)
	}

	vat := decimal.NewFromInt(20)
	products := []model.Product{
		{SKU: "RNG-SOL-001", Name: "Solitaire diamond ring 0.5ct", Category: "rings",
			UnitPrice: decimal.NewFromInt(1450), UnitCost: decimal.NewFromInt(820), TaxRate: vat,
			StockQuantity: 3, ReorderLevel: 1, TrackStock: true, Active: true},
		{SKU: "CHN-GLD-018", Name: "18ct gold curb chain 20in", Category: "chains",
			UnitPrice: decimal.NewFromInt(690), UnitCost: decimal.NewFromInt(410), TaxRate: vat,
			StockQuantity: 6, ReorderLevel: 2, TrackStock: true, Active: true},
		{SKU: "WAT-VIN-OMG", Name: "Vintage Omega Seamaster", Category: "watches",
			UnitPrice: decimal.NewFromInt(2100), UnitCost: decimal.NewFromInt(1600), TaxRate: vat,
			StockQuantity: 1, TrackStock: true, IsConsignment: true, SupplierID: &supplier.ID, Active: true},
		{SKU: "SVC-RESIZE", Name: "Ring resize", Category: "services",
			UnitPrice: decimal.NewFromInt(45), UnitCost: decimal.Zero, TaxRate: vat,
			TrackStock: false, Active: true},
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "unit_price", "unit_cost", "stock_quantity", "active"}),
	}).Create(&products).Error
	if err != nil {
		log.Fatalf("products: %v", err)
	}
	fmt.Printf("seeded %d products for supplier %d\n", len(products), supplier.ID)
}

package worker

// stock_alert_worker.go
// Raises low-stock alerts after a sale or edit reduced stock. The check runs
// off the request path; a missed alert never affects the sale itself.

import (
	"context"
	"encoding/json"
	"fmt"

	"sourcedpos/internal/model"
	"sourcedpos/internal/obs"

	"github.com/rs/zerolog/log"
)

// LowStockReader is satisfied by repository.ProductRepository.
type LowStockReader interface {
	ListLowStock(ctx context.Context, ids []int64) ([]model.Product, error)
}

type StockAlertWorker struct {
	products LowStockReader
}

func NewStockAlertWorker(products LowStockReader) *StockAlertWorker {
	return &StockAlertWorker{products: products}
}

func (w *StockAlertWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload StockAlertPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		obs.IncStockAlertJob("invalid")
		// Retrying cannot fix a bad payload.
		log.Error().Err(err).Msg("stock_alert_worker: invalid payload")
		return nil
	}
	if len(payload.ProductIDs) == 0 {
		return nil
	}

	low, err := w.products.ListLowStock(ctx, payload.ProductIDs)
	if err != nil {
		obs.IncStockAlertJob("error")
		return fmt.Errorf("list low stock: %w", err)
	}
	for _, p := range low {
		log.Warn().
			Int64("product_id", p.ID).
			Str("sku", p.SKU).
			Int("stock", p.StockQuantity).
			Int("reorder_level", p.ReorderLevel).
			Msg("stock at or below reorder level")
	}
	if len(low) > 0 {
		obs.IncStockAlertJob("alerted")
	} else {
		obs.IncStockAlertJob("ok")
	}
	return nil
}

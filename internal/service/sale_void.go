package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/model"
	"sourcedpos/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ── Void ──────────────────────────────────────────────────────────────────────
// Active → Voided, never back. The sale and its lines stay queryable; stock
// for every tracked line is put back at the line's current quantity, unpaid
// settlements are cancelled and any drawer inflow gets an inverse movement.

func (s *saleService) Void(ctx context.Context, actor authz.Actor, id int64, req dto.VoidSaleRequest) (*dto.SaleResponse, error) {
	resp, err := s.void(ctx, actor, id, req)
	recordOutcome("void", err)
	return resp, err
}

func (s *saleService) void(ctx context.Context, actor authz.Actor, id int64, req dto.VoidSaleRequest) (*dto.SaleResponse, error) {
	if err := require(s.authz, actor, authz.CapVoidSales); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}

	sale, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.IsVoided {
		return nil, ErrSaleVoided
	}
	if req.Version != nil && *req.Version != sale.Version {
		return nil, &ConcurrentModificationError{SaleID: sale.ID}
	}

	restore := map[int64]int{}
	for _, it := range sale.Items {
		restore[it.ProductID] += it.Quantity
	}
	products, err := s.trackedProducts(ctx, restore)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var paidSettlements int64
	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		if err := s.sales.MarkVoidedTx(tx, sale.ID, sale.Version, reason, now); err != nil {
			return err
		}

		var stock []StockChange
		for _, pid := range sortedKeys(restore) {
			p := products[pid]
			if p == nil {
				continue
			}
			ch, err := s.ledger.RestoreTx(ctx, tx, p, restore[pid])
			if err != nil {
				return err
			}
			stock = append(stock, ch)
		}
		if err := s.ledger.RecordTx(tx, stock, model.StockMovementVoidRestore, sale.ID, reason); err != nil {
			return err
		}

		paid, err := s.settlements.CancelUnpaidTx(tx, sale.ID, now)
		if err != nil {
			return err
		}
		paidSettlements = paid

		inflow, err := s.cash.SumBySaleTx(tx, sale.ID)
		if err != nil {
			return err
		}
		if inflow.IsPositive() {
			ref := sale.ID
			if err := s.cash.CreateTx(tx, &model.CashMovement{
				LocationID:  sale.LocationID,
				Kind:        model.CashMovementVoid,
				Amount:      inflow.Neg(),
				Description: fmt.Sprintf("Void sale #%d: %s", sale.ID, reason),
				SaleID:      &ref,
				StaffID:     actor.StaffID,
			}); err != nil {
				return err
			}
		}

		return s.audit.CreateTx(tx, auditEntry(sale.ID, model.AuditVoid, reason, actor, map[string]any{
			"total":           sale.Total,
			"restored":        stock,
			"cash_reversed":   inflow,
			"paid_settlement": paid,
		}))
	})
	if txErr != nil {
		if errors.Is(txErr, repository.ErrVersionConflict) {
			return nil, s.voidConflict(ctx, sale.ID)
		}
		return nil, fmt.Errorf("void sale %d: %w", sale.ID, txErr)
	}

	if paidSettlements > 0 {
		log.Warn().Int64("sale_id", sale.ID).Int64("paid_settlements", paidSettlements).
			Msg("void: consignor already paid; settlement left for manual reconciliation")
	}

	sale.IsVoided = true
	sale.VoidReason = &reason
	sale.VoidedAt = &now
	sale.Version++
	for i := range sale.Settlements {
		if sale.Settlements[i].PaidAt == nil && sale.Settlements[i].CancelledAt == nil {
			sale.Settlements[i].CancelledAt = &now
		}
	}

	log.Info().
		Int64("sale_id", sale.ID).
		Str("staff_id", actor.StaffID).
		Str("reason", reason).
		Msg("sale voided")

	return saleToResponse(sale), nil
}

// voidConflict tells a lost race against another void apart from one against
// an edit.
func (s *saleService) voidConflict(ctx context.Context, id int64) error {
	fresh, err := s.sales.FindByID(ctx, id)
	if err == nil && fresh.IsVoided {
		return ErrSaleVoided
	}
	return &ConcurrentModificationError{SaleID: id}
}

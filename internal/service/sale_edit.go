package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/model"
	"sourcedpos/internal/pricing"
	"sourcedpos/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const defaultEditReason = "Sale edited"

// ── Edit ──────────────────────────────────────────────────────────────────────
// The caller sends the version and line values it was looking at. If either
// no longer matches what is stored, nothing is written. Lines whose proposed
// values equal the snapshot are skipped; if none differ the call is a no-op.

func (s *saleService) Edit(ctx context.Context, actor authz.Actor, id int64, req dto.EditSaleRequest) (*dto.EditSaleResponse, error) {
	resp, err := s.edit(ctx, actor, id, req)
	recordOutcome("edit", err)
	return resp, err
}

func (s *saleService) edit(ctx context.Context, actor authz.Actor, id int64, req dto.EditSaleRequest) (*dto.EditSaleResponse, error) {
	if err := require(s.authz, actor, authz.CapEditSales); err != nil {
		return nil, err
	}
	sale, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.IsVoided {
		return nil, ErrSaleVoided
	}
	if len(req.Lines) == 0 {
		return nil, invalid("lines", "at least one line is required")
	}

	items := make(map[int64]*model.SaleLineItem, len(sale.Items))
	for i := range sale.Items {
		items[sale.Items[i].ID] = &sale.Items[i]
	}

	fields := map[string]string{}
	seen := map[int64]bool{}
	for i, l := range req.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		switch {
		case items[l.ItemID] == nil:
			fields[field+".item_id"] = "not a line of this sale"
		case seen[l.ItemID]:
			fields[field+".item_id"] = "line listed twice"
		case l.Quantity <= 0:
			fields[field+".quantity"] = "must be greater than zero"
		case l.UnitPrice.IsNegative():
			fields[field+".unit_price"] = "must not be negative"
		case l.Discount.IsNegative():
			fields[field+".discount"] = "must not be negative"
		case subPenny(l.UnitPrice):
			fields[field+".unit_price"] = scaleReason
		case subPenny(l.Discount):
			fields[field+".discount"] = scaleReason
		case l.Discount.GreaterThan(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))):
			fields[field+".discount"] = "exceeds the line amount"
		}
		seen[l.ItemID] = true
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	if req.Version != sale.Version {
		return nil, &ConcurrentModificationError{SaleID: sale.ID}
	}
	for _, l := range req.Lines {
		item := items[l.ItemID]
		if item.Quantity != l.Original.Quantity ||
			!item.UnitPrice.Equal(l.Original.UnitPrice) ||
			!item.Discount.Equal(l.Original.Discount) {
			return nil, &ConcurrentModificationError{SaleID: sale.ID}
		}
	}

	// Open settlements by product; an edit moves their amounts with the lines.
	settlements, err := s.settlements.ListBySale(ctx, sale.ID)
	if err != nil {
		return nil, err
	}
	byProduct := map[int64]*model.ConsignmentSettlement{}
	for i := range settlements {
		if settlements[i].CancelledAt == nil {
			byProduct[settlements[i].ProductID] = &settlements[i]
		}
	}

	resp := &dto.EditSaleResponse{Lines: make([]dto.LineChangeResponse, 0, len(req.Lines))}
	var (
		changed []*model.SaleLineItem
		relink  []*model.ConsignmentSettlement
	)
	deltas := map[int64]int{}
	relinked := map[int64]bool{}
	for i, l := range req.Lines {
		has := l.Quantity != l.Original.Quantity ||
			!l.UnitPrice.Equal(l.Original.UnitPrice) ||
			!l.Discount.Equal(l.Original.Discount)
		delta := l.Quantity - l.Original.Quantity
		resp.Lines = append(resp.Lines, dto.LineChangeResponse{ItemID: l.ItemID, HasChanges: has, StockDelta: delta})
		if !has {
			continue
		}
		resp.HasChanges = true

		item := items[l.ItemID]
		if st := byProduct[item.ProductID]; st != nil {
			switch {
			case st.PaidAt != nil:
				fields[fmt.Sprintf("lines[%d]", i)] = "consignor already paid for this piece"
			case !relinked[st.ProductID]:
				relinked[st.ProductID] = true
				relink = append(relink, st)
			}
		}
		item.Quantity = l.Quantity
		item.UnitPrice = l.UnitPrice
		item.Discount = l.Discount
		changed = append(changed, item)
		if delta != 0 {
			deltas[item.ProductID] += delta
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if !resp.HasChanges {
		resp.Sale = *saleToResponse(sale)
		return resp, nil
	}

	totals, err := pricing.Compute(cartFromSale(sale))
	if err != nil {
		return nil, fromPricing(err, "")
	}
	totals = totals.Rounded()

	net := totals.Total.Sub(sale.PartExchangeTotal)
	if net.IsNegative() && !(req.ApproveNegative && s.authz.Can(actor, authz.CapApproveNegative)) {
		return nil, ErrApprovalRequired
	}

	products, err := s.trackedProducts(ctx, deltas)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = defaultEditReason
	}
	now := s.now()
	notes := appendNote(sale.Notes, now, actor, reason)
	header := repository.SaleHeaderUpdate{
		Subtotal:          totals.Subtotal,
		DiscountTotal:     totals.DiscountTotal,
		TaxTotal:          totals.TaxTotal,
		Total:             totals.Total,
		PartExchangeTotal: sale.PartExchangeTotal,
		Notes:             notes,
		EditedAt:          &now,
	}

	var cashDelta decimal.Decimal
	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		// Version guard first: a losing editor fails before touching stock.
		if err := s.sales.UpdateHeaderTx(tx, sale.ID, sale.Version, header); err != nil {
			return err
		}

		var stock []StockChange
		for _, pid := range sortedKeys(deltas) {
			p := products[pid]
			if p == nil {
				continue
			}
			var (
				ch  StockChange
				err error
			)
			if d := deltas[pid]; d > 0 {
				ch, err = s.ledger.DecrementTx(ctx, tx, p, d)
			} else {
				ch, err = s.ledger.RestoreTx(ctx, tx, p, -d)
			}
			if err != nil {
				return err
			}
			stock = append(stock, ch)
		}

		for _, item := range changed {
			if err := s.sales.UpdateItemTx(tx, item); err != nil {
				return err
			}
		}
		if err := s.linker.RelinkTx(tx, sale, relink); err != nil {
			return err
		}
		if sale.Payment == model.PaymentCash {
			delta, err := s.adjustCashTx(tx, sale, actor, net, reason)
			if err != nil {
				return err
			}
			cashDelta = delta
		}
		if err := s.ledger.RecordTx(tx, stock, model.StockMovementEdit, sale.ID, reason); err != nil {
			return err
		}
		return s.audit.CreateTx(tx, auditEntry(sale.ID, model.AuditEdit, reason, actor, map[string]any{
			"lines":           resp.Lines,
			"old_total":       sale.Total,
			"new_total":       totals.Total,
			"cash_adjustment": cashDelta,
			"settlements":     len(relink),
		}))
	})
	if txErr != nil {
		var stockErr *InsufficientStockError
		switch {
		case errors.As(txErr, &stockErr):
			return nil, stockErr
		case errors.Is(txErr, repository.ErrVersionConflict),
			errors.Is(txErr, repository.ErrSettlementClosed):
			return nil, &ConcurrentModificationError{SaleID: sale.ID}
		}
		return nil, fmt.Errorf("edit sale %d: %w", sale.ID, txErr)
	}

	sale.Subtotal = totals.Subtotal
	sale.DiscountTotal = totals.DiscountTotal
	sale.TaxTotal = totals.TaxTotal
	sale.Total = totals.Total
	sale.Notes = notes
	sale.EditedAt = &now
	sale.Version++
	sale.Settlements = settlements

	log.Info().
		Int64("sale_id", sale.ID).
		Str("staff_id", actor.StaffID).
		Int("lines_changed", len(changed)).
		Str("total", sale.Total.StringFixed(2)).
		Msg("sale edited")

	var decremented []int64
	for _, pid := range sortedKeys(deltas) {
		if deltas[pid] > 0 {
			decremented = append(decremented, pid)
		}
	}
	s.publishStockAlert(ctx, decremented)

	resp.Sale = *saleToResponse(sale)
	return resp, nil
}

// adjustCashTx books the difference between what the drawer holds for a cash
// sale and its new net total. As on commit, a net total at or below zero is
// owed nothing in cash.
func (s *saleService) adjustCashTx(tx *gorm.DB, sale *model.Sale, actor authz.Actor, net decimal.Decimal, reason string) (decimal.Decimal, error) {
	held, err := s.cash.SumBySaleTx(tx, sale.ID)
	if err != nil {
		return decimal.Zero, err
	}
	delta := decimal.Max(net, decimal.Zero).Sub(held)
	if delta.IsZero() {
		return delta, nil
	}
	ref := sale.ID
	return delta, s.cash.CreateTx(tx, &model.CashMovement{
		LocationID:  sale.LocationID,
		Kind:        model.CashMovementEdit,
		Amount:      delta,
		Description: fmt.Sprintf("Edit sale #%d: %s", sale.ID, reason),
		SaleID:      &ref,
		StaffID:     actor.StaffID,
	})
}

// trackedProducts loads the stock-tracked products among the keys of qty.
func (s *saleService) trackedProducts(ctx context.Context, qty map[int64]int) (map[int64]*model.Product, error) {
	if len(qty) == 0 {
		return map[int64]*model.Product{}, nil
	}
	products, err := s.products.FindByIDs(ctx, sortedKeys(qty))
	if err != nil {
		return nil, err
	}
	for id, p := range products {
		if !p.TrackStock {
			delete(products, id)
		}
	}
	return products, nil
}

// cartFromSale rebuilds the priced cart from the stored lines and the stored
// cart discount. Trade-ins are not part of it; callers keep
// PartExchangeTotal as stored.
func cartFromSale(sale *model.Sale) pricing.Cart {
	cart := pricing.Cart{Lines: make([]pricing.Line, 0, len(sale.Items))}
	for _, it := range sale.Items {
		cart.Lines = append(cart.Lines, pricing.Line{
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Discount:  it.Discount,
			TaxRate:   it.TaxRate,
		})
	}
	if sale.DiscountType != nil {
		cart.Discount = pricing.Discount{
			Type:  pricing.DiscountType(*sale.DiscountType),
			Value: sale.DiscountValue,
		}
	}
	return cart
}

func appendNote(notes *string, at time.Time, actor authz.Actor, reason string) *string {
	who := actor.StaffName
	if who == "" {
		who = actor.StaffID
	}
	line := fmt.Sprintf("[%s] %s: %s", at.UTC().Format("2006-01-02 15:04"), who, reason)
	if notes != nil && *notes != "" {
		line = *notes + "\n" + line
	}
	return &line
}

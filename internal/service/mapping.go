package service

import (
	"encoding/json"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/model"
	"sourcedpos/internal/pricing"
)

func saleToResponse(s *model.Sale) *dto.SaleResponse {
	resp := &dto.SaleResponse{
		ID:                s.ID,
		StaffID:           s.StaffID,
		StaffMemberName:   s.StaffMemberName,
		Payment:           s.Payment,
		Subtotal:          s.Subtotal,
		DiscountTotal:     s.DiscountTotal,
		TaxTotal:          s.TaxTotal,
		Total:             s.Total,
		PartExchangeTotal: s.PartExchangeTotal,
		NetTotal:          s.NetTotal(),
		DiscountType:      s.DiscountType,
		DiscountValue:     s.DiscountValue,
		CustomerID:        s.CustomerID,
		CustomerName:      s.CustomerName,
		CustomerEmail:     s.CustomerEmail,
		Notes:             s.Notes,
		LocationID:        s.LocationID,
		IsVoided:          s.IsVoided,
		VoidReason:        s.VoidReason,
		VoidedAt:          formatTime(s.VoidedAt),
		EditedAt:          formatTime(s.EditedAt),
		ClientRef:         s.ClientRef,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
		Items:             make([]dto.SaleItemResponse, 0, len(s.Items)),
		PartExchanges:     make([]dto.PartExchangeResponse, 0, len(s.PartExchanges)),
	}
	for _, it := range s.Items {
		name := ""
		if it.Product != nil {
			name = it.Product.Name
		}
		resp.Items = append(resp.Items, dto.SaleItemResponse{
			ID:               it.ID,
			ProductID:        it.ProductID,
			Product:          name,
			Quantity:         it.Quantity,
			OriginalQuantity: it.OriginalQuantity,
			UnitPrice:        it.UnitPrice,
			UnitCost:         it.UnitCost,
			Discount:         it.Discount,
			TaxRate:          it.TaxRate,
			Revenue:          it.Revenue(),
		})
	}
	for _, p := range s.PartExchanges {
		resp.PartExchanges = append(resp.PartExchanges, dto.PartExchangeResponse{
			ID:        p.ID,
			Title:     p.Title,
			Serial:    p.Serial,
			Allowance: p.Allowance,
			Status:    p.Status,
			ProductID: p.ProductID,
		})
	}
	for _, st := range s.Settlements {
		resp.Settlements = append(resp.Settlements, dto.SettlementResponse{
			ID:           st.ID,
			ProductID:    st.ProductID,
			SupplierID:   st.SupplierID,
			SalePrice:    st.SalePrice,
			PayoutAmount: st.PayoutAmount,
			PaidAt:       formatTime(st.PaidAt),
			CancelledAt:  formatTime(st.CancelledAt),
		})
	}
	return resp
}

func quoteToResponse(t pricing.Totals) *dto.QuoteResponse {
	r := t.Rounded()
	resp := &dto.QuoteResponse{
		Subtotal:          r.Subtotal,
		DiscountTotal:     r.DiscountTotal,
		TaxTotal:          r.TaxTotal,
		Total:             r.Total,
		PartExchangeTotal: r.PartExchangeTotal,
		NetTotal:          r.NetTotal,
		Lines:             make([]dto.QuoteLineResponse, 0, len(t.Lines)),
	}
	for _, l := range t.Lines {
		resp.Lines = append(resp.Lines, dto.QuoteLineResponse{
			Gross:             l.Gross.Round(2),
			LineDiscount:      l.LineDiscount.Round(2),
			AllocatedDiscount: l.AllocatedDiscount.Round(2),
			Taxable:           l.Taxable.Round(2),
			Tax:               l.Tax.Round(2),
		})
	}
	return resp
}

func auditEntry(saleID int64, action, reason string, actor authz.Actor, details map[string]any) *model.SaleAuditEntry {
	raw := []byte("{}")
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	return &model.SaleAuditEntry{
		SaleID:  saleID,
		Action:  action,
		Reason:  reason,
		StaffID: actor.StaffID,
		Details: string(raw),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

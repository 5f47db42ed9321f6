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

// AddPartExchange attaches a trade-in to an already committed sale. It needs
// a manager-level capability and a reason; the sale totals are unchanged,
// only part_exchange_total grows.
func (s *saleService) AddPartExchange(ctx context.Context, actor authz.Actor, id int64, req dto.AddPartExchangeRequest) (*dto.SaleResponse, error) {
	resp, err := s.addPartExchange(ctx, actor, id, req)
	recordOutcome("add_part_exchange", err)
	return resp, err
}

func (s *saleService) addPartExchange(ctx context.Context, actor authz.Actor, id int64, req dto.AddPartExchangeRequest) (*dto.SaleResponse, error) {
	if err := require(s.authz, actor, authz.CapAddPartExchange); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		fields["reason"] = "is required for a trade-in added after sale"
	}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "is required"
	}
	if !req.Allowance.IsPositive() {
		fields["allowance"] = "must be greater than zero"
	} else {
		checkMoneyScale(fields, "allowance", req.Allowance)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	sale, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if sale.IsVoided {
		return nil, ErrSaleVoided
	}

	px := newPartExchange(req.PartExchangeRequest)
	px.SaleID = &sale.ID
	newTotal := sale.PartExchangeTotal.Add(req.Allowance)

	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		if err := s.sales.UpdateHeaderTx(tx, sale.ID, sale.Version, repository.SaleHeaderUpdate{
			Subtotal:          sale.Subtotal,
			DiscountTotal:     sale.DiscountTotal,
			TaxTotal:          sale.TaxTotal,
			Total:             sale.Total,
			PartExchangeTotal: newTotal,
			Notes:             sale.Notes,
			EditedAt:          sale.EditedAt,
		}); err != nil {
			return err
		}
		if err := s.partExchanges.CreateTx(tx, &px); err != nil {
			return err
		}
		return s.audit.CreateTx(tx, auditEntry(sale.ID, model.AuditPartExchangeAdded, reason, actor, map[string]any{
			"title":     px.Title,
			"allowance": px.Allowance,
		}))
	})
	if txErr != nil {
		if errors.Is(txErr, repository.ErrVersionConflict) {
			return nil, &ConcurrentModificationError{SaleID: sale.ID}
		}
		return nil, fmt.Errorf("add part-exchange to sale %d: %w", sale.ID, txErr)
	}

	sale.PartExchanges = append(sale.PartExchanges, px)
	sale.PartExchangeTotal = newTotal
	sale.Version++

	log.Info().Int64("sale_id", sale.ID).Str("staff_id", actor.StaffID).
		Str("allowance", px.Allowance.StringFixed(2)).Msg("part-exchange added after sale")
	return saleToResponse(sale), nil
}

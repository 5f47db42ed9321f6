package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/model"
	"sourcedpos/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// CommissionConfig is the shop-wide default. DefaultRate is a percentage.
type CommissionConfig struct {
	Enabled     bool
	DefaultRate decimal.Decimal
	Basis       string
}

// CommissionResult is the computed commission for one sale, before any
// manual override is applied.
type CommissionResult struct {
	Rate       decimal.Decimal
	Basis      string
	Revenue    decimal.Decimal
	Profit     decimal.Decimal
	Calculated decimal.Decimal
}

// CalculateCommission applies the staff setting over the global default:
//
//	rate       = setting.rate  ?? default rate
//	basis      = setting.basis ?? default basis
//	calculated = (profit basis ? profit : revenue) × rate / 100
//
// Revenue and profit come from the line snapshots. A disabled config yields
// a zero commission but still reports revenue and profit.
func CalculateCommission(items []model.SaleLineItem, cfg CommissionConfig, setting *model.StaffCommissionSetting) CommissionResult {
	r := CommissionResult{Rate: cfg.DefaultRate, Basis: cfg.Basis}
	if r.Basis == "" {
		r.Basis = model.CommissionBasisRevenue
	}
	if setting != nil {
		if setting.CommissionRate != nil {
			r.Rate = *setting.CommissionRate
		}
		if setting.CommissionBasis != nil && *setting.CommissionBasis != "" {
			r.Basis = *setting.CommissionBasis
		}
	}

	cost := decimal.Zero
	for _, it := range items {
		r.Revenue = r.Revenue.Add(it.Revenue())
		cost = cost.Add(it.Cost())
	}
	r.Profit = r.Revenue.Sub(cost)

	if !cfg.Enabled {
		r.Calculated = decimal.Zero
		return r
	}
	base := r.Revenue
	if r.Basis == model.CommissionBasisProfit {
		base = r.Profit
	}
	// A loss-making sale on the profit basis earns nothing, never a clawback.
	r.Calculated = decimal.Max(base, decimal.Zero).Mul(r.Rate).Div(hundred).Round(2)
	return r
}

type CommissionService interface {
	ForSale(ctx context.Context, saleID int64) (*dto.CommissionResponse, error)
	SetOverride(ctx context.Context, actor authz.Actor, saleID int64, req dto.CommissionOverrideRequest) (*dto.CommissionResponse, error)
	ClearOverride(ctx context.Context, actor authz.Actor, saleID int64) (*dto.CommissionResponse, error)
	StaffSummary(ctx context.Context, filter dto.CommissionFilter) ([]dto.StaffCommissionSummary, error)
}

type commissionService struct {
	sales    repository.SaleRepository
	settings repository.CommissionRepository
	audit    repository.AuditRepository
	authz    authz.Authorizer
	cfg      CommissionConfig
}

func NewCommissionService(
	sales repository.SaleRepository,
	settings repository.CommissionRepository,
	audit repository.AuditRepository,
	authorizer authz.Authorizer,
	cfg CommissionConfig,
) CommissionService {
	if authorizer == nil {
		authorizer = authz.RoleAuthorizer{}
	}
	return &commissionService{sales: sales, settings: settings, audit: audit, authz: authorizer, cfg: cfg}
}

func (s *commissionService) ForSale(ctx context.Context, saleID int64) (*dto.CommissionResponse, error) {
	sale, err := s.activeSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	return s.describe(ctx, sale)
}

// SetOverride replaces the reported commission with a manual amount. The
// calculated value is still returned alongside for comparison.
func (s *commissionService) SetOverride(ctx context.Context, actor authz.Actor, saleID int64, req dto.CommissionOverrideRequest) (*dto.CommissionResponse, error) {
	resp, err := s.setOverride(ctx, actor, saleID, req)
	recordOutcome("commission_override", err)
	return resp, err
}

func (s *commissionService) setOverride(ctx context.Context, actor authz.Actor, saleID int64, req dto.CommissionOverrideRequest) (*dto.CommissionResponse, error) {
	if err := require(s.authz, actor, authz.CapEditSales); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, invalid("reason", "is required")
	}
	if req.Amount.IsNegative() {
		return nil, invalid("amount", "must not be negative")
	}

	sale, err := s.activeSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	amount := req.Amount.Round(2)
	if err := s.writeOverride(ctx, actor, sale, &amount, &reason, model.AuditCommissionOverride); err != nil {
		return nil, err
	}
	sale.CommissionOverride = &amount
	sale.CommissionOverrideReason = &reason
	sale.Version++

	log.Info().Int64("sale_id", sale.ID).Str("staff_id", actor.StaffID).
		Str("amount", amount.StringFixed(2)).Msg("commission override set")
	return s.describe(ctx, sale)
}

// ClearOverride drops the manual amount; the response carries a freshly
// computed commission.
func (s *commissionService) ClearOverride(ctx context.Context, actor authz.Actor, saleID int64) (*dto.CommissionResponse, error) {
	resp, err := s.clearOverride(ctx, actor, saleID)
	recordOutcome("commission_override_clear", err)
	return resp, err
}

func (s *commissionService) clearOverride(ctx context.Context, actor authz.Actor, saleID int64) (*dto.CommissionResponse, error) {
	if err := require(s.authz, actor, authz.CapEditSales); err != nil {
		return nil, err
	}
	sale, err := s.activeSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.CommissionOverride == nil {
		return s.describe(ctx, sale)
	}
	if err := s.writeOverride(ctx, actor, sale, nil, nil, model.AuditCommissionCleared); err != nil {
		return nil, err
	}
	sale.CommissionOverride = nil
	sale.CommissionOverrideReason = nil
	sale.Version++

	log.Info().Int64("sale_id", sale.ID).Str("staff_id", actor.StaffID).Msg("commission override cleared")
	return s.describe(ctx, sale)
}

// StaffSummary totals commission per staff member over active sales in the
// range. Overrides replace the calculated amount sale by sale.
func (s *commissionService) StaffSummary(ctx context.Context, filter dto.CommissionFilter) ([]dto.StaffCommissionSummary, error) {
	from, to, err := parseRange(filter.From, filter.To)
	if err != nil {
		return nil, err
	}
	active := false
	sales, _, err := s.sales.List(ctx, repository.SaleQuery{From: from, To: to, Voided: &active})
	if err != nil {
		return nil, err
	}

	var staffIDs []string
	byStaff := map[string]*dto.StaffCommissionSummary{}
	for _, sale := range sales {
		if _, ok := byStaff[sale.StaffID]; !ok {
			byStaff[sale.StaffID] = &dto.StaffCommissionSummary{StaffID: sale.StaffID, StaffName: sale.StaffMemberName}
			staffIDs = append(staffIDs, sale.StaffID)
		}
	}
	sort.Strings(staffIDs)

	settings := map[string]*model.StaffCommissionSetting{}
	if len(staffIDs) > 0 {
		if settings, err = s.settings.ListByStaffIDs(ctx, staffIDs); err != nil {
			return nil, err
		}
	}

	for _, sale := range sales {
		if sale.IsVoided {
			continue
		}
		row := byStaff[sale.StaffID]
		r := CalculateCommission(sale.Items, s.cfg, settings[sale.StaffID])
		row.Sales++
		row.Revenue = row.Revenue.Add(r.Revenue)
		row.Profit = row.Profit.Add(r.Profit)
		if sale.CommissionOverride != nil {
			row.Commission = row.Commission.Add(*sale.CommissionOverride)
		} else {
			row.Commission = row.Commission.Add(r.Calculated)
		}
	}

	out := make([]dto.StaffCommissionSummary, 0, len(staffIDs))
	for _, id := range staffIDs {
		out = append(out, *byStaff[id])
	}
	return out, nil
}

func (s *commissionService) activeSale(ctx context.Context, saleID int64) (*model.Sale, error) {
	sale, err := s.sales.FindByID(ctx, saleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	if sale.IsVoided {
		return nil, ErrSaleVoided
	}
	return sale, nil
}

func (s *commissionService) describe(ctx context.Context, sale *model.Sale) (*dto.CommissionResponse, error) {
	setting, err := s.settings.FindByStaffID(ctx, sale.StaffID)
	if err != nil {
		return nil, err
	}
	r := CalculateCommission(sale.Items, s.cfg, setting)
	resp := &dto.CommissionResponse{
		SaleID:         sale.ID,
		StaffID:        sale.StaffID,
		Rate:           r.Rate,
		Basis:          r.Basis,
		Revenue:        r.Revenue,
		Profit:         r.Profit,
		Calculated:     r.Calculated,
		Override:       sale.CommissionOverride,
		OverrideReason: sale.CommissionOverrideReason,
		Commission:     r.Calculated,
		Version:        sale.Version,
	}
	if sale.CommissionOverride != nil {
		resp.Commission = *sale.CommissionOverride
	}
	return resp, nil
}

func (s *commissionService) writeOverride(ctx context.Context, actor authz.Actor, sale *model.Sale, amount *decimal.Decimal, reason *string, action string) error {
	details := map[string]any{"previous": sale.CommissionOverride}
	if amount != nil {
		details["amount"] = amount
	}
	note := ""
	if reason != nil {
		note = *reason
	}
	err := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		if err := s.sales.UpdateCommissionOverrideTx(tx, sale.ID, sale.Version, amount, reason); err != nil {
			return err
		}
		return s.audit.CreateTx(tx, auditEntry(sale.ID, action, note, actor, details))
	})
	if errors.Is(err, repository.ErrVersionConflict) {
		return &ConcurrentModificationError{SaleID: sale.ID}
	}
	if err != nil {
		return fmt.Errorf("commission override on sale %d: %w", sale.ID, err)
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/dto"
	"sourcedpos/internal/model"
	"sourcedpos/internal/obs"
	"sourcedpos/internal/pricing"
	"sourcedpos/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SaleService interface {
	Quote(ctx context.Context, req dto.QuoteRequest) (*dto.QuoteResponse, error)
	Commit(ctx context.Context, actor authz.Actor, req dto.CommitSaleRequest) (*dto.SaleResponse, error)
	Edit(ctx context.Context, actor authz.Actor, id int64, req dto.EditSaleRequest) (*dto.EditSaleResponse, error)
	Void(ctx context.Context, actor authz.Actor, id int64, req dto.VoidSaleRequest) (*dto.SaleResponse, error)
	AddPartExchange(ctx context.Context, actor authz.Actor, id int64, req dto.AddPartExchangeRequest) (*dto.SaleResponse, error)
	Get(ctx context.Context, id int64) (*dto.SaleResponse, error)
	List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error)
	Summary(ctx context.Context, filter dto.SaleFilter) (*dto.SaleSummaryResponse, error)
}

// StockAlertPublisher receives the products touched by a write so low-stock
// alerts can be raised off the request path. worker.Dispatcher implements it.
type StockAlertPublisher interface {
	EnqueueStockAlert(ctx context.Context, productIDs []int64) error
}

// SaleServiceDeps groups the collaborators of the sale service.
// Alerts may be nil.
type SaleServiceDeps struct {
	Sales         repository.SaleRepository
	Products      repository.ProductRepository
	PartExchanges repository.PartExchangeRepository
	Settlements   repository.SettlementRepository
	Cash          repository.CashRepository
	Audit         repository.AuditRepository
	Ledger        StockLedger
	Linker        *SettlementLinker
	Authz         authz.Authorizer
	Alerts        StockAlertPublisher
}

type saleService struct {
	sales         repository.SaleRepository
	products      repository.ProductRepository
	partExchanges repository.PartExchangeRepository
	settlements   repository.SettlementRepository
	cash          repository.CashRepository
	audit         repository.AuditRepository
	ledger        StockLedger
	linker        *SettlementLinker
	authz         authz.Authorizer
	alerts        StockAlertPublisher
	now           func() time.Time
}

func NewSaleService(d SaleServiceDeps) SaleService {
	if d.Authz == nil {
		d.Authz = authz.RoleAuthorizer{}
	}
	return &saleService{
		sales:         d.Sales,
		products:      d.Products,
		partExchanges: d.PartExchanges,
		settlements:   d.Settlements,
		cash:          d.Cash,
		audit:         d.Audit,
		ledger:        d.Ledger,
		linker:        d.Linker,
		authz:         d.Authz,
		alerts:        d.Alerts,
		now:           time.Now,
	}
}

// runTx executes fn inside a GORM transaction when db is available,
// or calls fn(nil) directly when db is nil (unit test mode).
func runTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if db == nil {
		return fn(nil)
	}
	return db.WithContext(ctx).Transaction(fn)
}

// ── Quote ─────────────────────────────────────────────────────────────────────

func (s *saleService) Quote(ctx context.Context, req dto.QuoteRequest) (*dto.QuoteResponse, error) {
	if err := cartScaleError(req.Items, req.Discount, req.PartExchanges); err != nil {
		return nil, err
	}
	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	totals, err := pricing.Compute(buildCart(req.Items, req.Discount, req.PartExchanges, products))
	if err != nil {
		return nil, fromPricing(err, "items")
	}
	return quoteToResponse(totals), nil
}

// ── Commit ────────────────────────────────────────────────────────────────────
// One transaction, all or nothing:
//   1. Conditionally decrement stock per tracked product (ascending id order)
//   2. Insert sale header, lines and pending part-exchanges
//   3. Insert consignment settlements
//   4. Record stock movements and, for cash, the drawer inflow
//   5. Audit entry
// A failed stock post-condition surfaces as *InsufficientStockError; anything
// else inside the transaction as *CommitFailure.

func (s *saleService) Commit(ctx context.Context, actor authz.Actor, req dto.CommitSaleRequest) (*dto.SaleResponse, error) {
	resp, err := s.commit(ctx, actor, req)
	recordOutcome("commit", err)
	return resp, err
}

func (s *saleService) commit(ctx context.Context, actor authz.Actor, req dto.CommitSaleRequest) (*dto.SaleResponse, error) {
	if err := require(s.authz, actor, authz.CapSell); err != nil {
		return nil, err
	}

	// Deduplicate a resubmitted cart
	if req.ClientRef != nil && *req.ClientRef != "" {
		if existing, err := s.sales.FindByClientRef(ctx, *req.ClientRef); err == nil {
			log.Info().Int64("sale_id", existing.ID).Str("client_ref", *req.ClientRef).
				Msg("commit: client_ref already committed, returning existing sale")
			return saleToResponse(existing), nil
		}
	}

	if len(req.Items) == 0 {
		return nil, invalid("items", "at least one line is required")
	}
	switch req.Payment {
	case model.PaymentCash, model.PaymentCard, model.PaymentTransfer, model.PaymentOther:
	default:
		return nil, invalid("payment", "must be one of cash, card, transfer, other")
	}
	if err := cartScaleError(req.Items, req.Discount, req.PartExchanges); err != nil {
		return nil, err
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	totals, err := pricing.Compute(buildCart(req.Items, req.Discount, req.PartExchanges, products))
	if err != nil {
		return nil, fromPricing(err, "items")
	}
	totals = totals.Rounded()

	if totals.NetTotal.IsNegative() && !(req.ApproveNegative && s.authz.Can(actor, authz.CapApproveNegative)) {
		return nil, ErrApprovalRequired
	}

	// Advisory check: fail fast with the shelf count the terminal last saw.
	want := map[int64]int{}
	for _, item := range req.Items {
		if products[item.ProductID].TrackStock {
			want[item.ProductID] += item.Quantity
		}
	}
	if err := s.ledger.Check(ctx, want, products); err != nil {
		return nil, err
	}

	sale := newSale(actor, req, totals, products)

	txErr := runTx(ctx, s.sales.DB(), func(tx *gorm.DB) error {
		changes := make([]StockChange, 0, len(want))
		for _, id := range sortedKeys(want) {
			ch, err := s.ledger.DecrementTx(ctx, tx, products[id], want[id])
			if err != nil {
				return err
			}
			changes = append(changes, ch)
		}

		if err := s.sales.CreateTx(tx, &sale); err != nil {
			return err
		}

		settlements, err := s.linker.LinkTx(tx, &sale, products)
		if err != nil {
			return err
		}
		sale.Settlements = settlements

		if err := s.ledger.RecordTx(tx, changes, model.StockMovementSale, sale.ID, fmt.Sprintf("Sale #%d", sale.ID)); err != nil {
			return err
		}

		if sale.Payment == model.PaymentCash && totals.NetTotal.IsPositive() {
			ref := sale.ID
			if err := s.cash.CreateTx(tx, &model.CashMovement{
				LocationID:  sale.LocationID,
				Kind:        model.CashMovementSale,
				Amount:      totals.NetTotal,
				Description: fmt.Sprintf("Sale #%d", sale.ID),
				SaleID:      &ref,
				StaffID:     actor.StaffID,
			}); err != nil {
				return err
			}
		}

		return s.audit.CreateTx(tx, auditEntry(sale.ID, model.AuditCommit, "", actor, map[string]any{
			"total":     sale.Total,
			"net_total": totals.NetTotal,
			"lines":     len(sale.Items),
		}))
	})
	if txErr != nil {
		var stockErr *InsufficientStockError
		if errors.As(txErr, &stockErr) {
			obs.IncStockConflict()
			return nil, stockErr
		}
		log.Error().Err(txErr).Str("staff_id", actor.StaffID).Msg("commit: transaction rolled back")
		return nil, &CommitFailure{Err: txErr}
	}

	log.Info().
		Int64("sale_id", sale.ID).
		Str("staff_id", actor.StaffID).
		Interface("location_id", sale.LocationID).
		Str("total", sale.Total.StringFixed(2)).
		Msg("sale committed")

	s.publishStockAlert(ctx, sortedKeys(want))

	for i := range sale.Items {
		sale.Items[i].Product = products[sale.Items[i].ProductID]
	}
	return saleToResponse(&sale), nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

func (s *saleService) Get(ctx context.Context, id int64) (*dto.SaleResponse, error) {
	sale, err := s.findSale(ctx, id)
	if err != nil {
		return nil, err
	}
	return saleToResponse(sale), nil
}

// List returns a page of sales, newest first. Voided sales are excluded
// unless the filter asks for them.
func (s *saleService) List(ctx context.Context, filter dto.SaleFilter) (*dto.SaleListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 50
	}
	q, err := toQuery(filter)
	if err != nil {
		return nil, err
	}
	sales, total, err := s.sales.List(ctx, q)
	if err != nil {
		return nil, err
	}
	data := make([]dto.SaleResponse, 0, len(sales))
	for i := range sales {
		data = append(data, *saleToResponse(&sales[i]))
	}
	return &dto.SaleListResponse{Data: data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Summary aggregates active sales; voided sales never count.
func (s *saleService) Summary(ctx context.Context, filter dto.SaleFilter) (*dto.SaleSummaryResponse, error) {
	q, err := toQuery(filter)
	if err != nil {
		return nil, err
	}
	t, err := s.sales.Summary(ctx, q)
	if err != nil {
		return nil, err
	}
	return &dto.SaleSummaryResponse{
		Count:             t.Count,
		Subtotal:          t.Subtotal,
		DiscountTotal:     t.DiscountTotal,
		TaxTotal:          t.TaxTotal,
		Total:             t.Total,
		PartExchangeTotal: t.PartExchangeTotal,
		NetTotal:          t.Total.Sub(t.PartExchangeTotal),
	}, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (s *saleService) findSale(ctx context.Context, id int64) (*model.Sale, error) {
	sale, err := s.sales.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// resolveProducts loads every product referenced by the cart and rejects
// unknown, inactive or misconfigured ones in a single ValidationError.
func (s *saleService) resolveProducts(ctx context.Context, items []dto.SaleLineRequest) (map[int64]*model.Product, error) {
	if len(items) == 0 {
		return map[int64]*model.Product{}, nil
	}
	seen := map[int64]bool{}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	for i, item := range items {
		field := fmt.Sprintf("items[%d].product_id", i)
		p := products[item.ProductID]
		switch {
		case p == nil:
			fields[field] = "product not found"
		case !p.Active:
			fields[field] = "product is not available for sale"
		case p.IsConsignment && p.SupplierID == nil:
			fields[field] = "consignment product has no supplier"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return products, nil
}

func (s *saleService) publishStockAlert(ctx context.Context, productIDs []int64) {
	if s.alerts == nil || len(productIDs) == 0 {
		return
	}
	// Best-effort: the sale is already committed.
	if err := s.alerts.EnqueueStockAlert(ctx, productIDs); err != nil {
		log.Warn().Err(err).Msg("stock alert enqueue failed")
	}
}

// Stored amounts carry two decimal places; finer inputs are rejected so the
// priced lines equal the persisted ones.
func checkMoneyScale(fields map[string]string, field string, v decimal.Decimal) {
	if subPenny(v) {
		fields[field] = scaleReason
	}
}

const scaleReason = "must have at most 2 decimal places"

func subPenny(v decimal.Decimal) bool { return !v.Equal(v.Round(2)) }

func cartScaleError(items []dto.SaleLineRequest, discount *dto.DiscountRequest, trades []dto.PartExchangeRequest) error {
	fields := map[string]string{}
	for i, item := range items {
		if item.UnitPrice != nil {
			checkMoneyScale(fields, fmt.Sprintf("items[%d].unit_price", i), *item.UnitPrice)
		}
		checkMoneyScale(fields, fmt.Sprintf("items[%d].discount", i), item.Discount)
	}
	if discount != nil {
		checkMoneyScale(fields, "discount.value", discount.Value)
	}
	for i, t := range trades {
		checkMoneyScale(fields, fmt.Sprintf("part_exchanges[%d].allowance", i), t.Allowance)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func buildCart(items []dto.SaleLineRequest, discount *dto.DiscountRequest, trades []dto.PartExchangeRequest, products map[int64]*model.Product) pricing.Cart {
	cart := pricing.Cart{Lines: make([]pricing.Line, 0, len(items))}
	for _, item := range items {
		p := products[item.ProductID]
		price := p.UnitPrice
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		cart.Lines = append(cart.Lines, pricing.Line{
			UnitPrice: price,
			Quantity:  item.Quantity,
			Discount:  item.Discount,
			TaxRate:   p.TaxRate,
		})
	}
	if discount != nil {
		cart.Discount = pricing.Discount{Type: pricing.DiscountType(discount.Type), Value: discount.Value}
	}
	for _, t := range trades {
		cart.TradeIns = append(cart.TradeIns, t.Allowance)
	}
	return cart
}

func newSale(actor authz.Actor, req dto.CommitSaleRequest, totals pricing.Totals, products map[int64]*model.Product) model.Sale {
	sale := model.Sale{
		StaffID:           actor.StaffID,
		StaffMemberName:   actor.StaffName,
		Payment:           req.Payment,
		Subtotal:          totals.Subtotal,
		DiscountTotal:     totals.DiscountTotal,
		TaxTotal:          totals.TaxTotal,
		PartExchangeTotal: totals.PartExchangeTotal,
		Total:             totals.Total,
		CustomerID:        req.CustomerID,
		CustomerName:      req.CustomerName,
		CustomerEmail:     req.CustomerEmail,
		Notes:             req.Notes,
		SignatureData:     req.SignatureData,
		LocationID:        req.LocationID,
		ClientRef:         req.ClientRef,
		Version:           1,
	}
	if req.Discount != nil {
		t := req.Discount.Type
		sale.DiscountType = &t
		sale.DiscountValue = req.Discount.Value
	}

	for _, item := range req.Items {
		p := products[item.ProductID]
		price := p.UnitPrice
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		sale.Items = append(sale.Items, model.SaleLineItem{
			ProductID:        p.ID,
			Quantity:         item.Quantity,
			OriginalQuantity: item.Quantity,
			UnitPrice:        price,
			UnitCost:         p.UnitCost,
			Discount:         item.Discount,
			TaxRate:          p.TaxRate,
		})
	}

	for _, t := range req.PartExchanges {
		sale.PartExchanges = append(sale.PartExchanges, newPartExchange(t))
	}
	return sale
}

func newPartExchange(t dto.PartExchangeRequest) model.PartExchangeItem {
	return model.PartExchangeItem{
		Title:              t.Title,
		Category:           t.Category,
		Description:        t.Description,
		Serial:             t.Serial,
		Allowance:          t.Allowance,
		CustomerName:       t.CustomerName,
		CustomerContact:    t.CustomerContact,
		CustomerSupplierID: t.CustomerSupplierID,
		Notes:              t.Notes,
		Status:             model.PartExchangePending,
	}
}

func toQuery(f dto.SaleFilter) (repository.SaleQuery, error) {
	q := repository.SaleQuery{
		StaffID:    f.StaffID,
		LocationID: f.LocationID,
		Page:       f.Page,
		Limit:      f.Limit,
	}
	from, to, err := parseRange(f.From, f.To)
	if err != nil {
		return q, err
	}
	q.From, q.To = from, to

	switch f.Voided {
	case "", "false":
		v := false
		q.Voided = &v
	case "true":
		v := true
		q.Voided = &v
	case "all":
	default:
		return q, invalid("voided", "must be false, true or all")
	}
	return q, nil
}

// parseRange turns inclusive YYYY-MM-DD bounds into a [from, to) window.
func parseRange(fromStr, toStr string) (from, to *time.Time, err error) {
	if fromStr != "" {
		t, perr := time.Parse("2006-01-02", fromStr)
		if perr != nil {
			return nil, nil, invalid("from", "must be a YYYY-MM-DD date")
		}
		from = &t
	}
	if toStr != "" {
		t, perr := time.Parse("2006-01-02", toStr)
		if perr != nil {
			return nil, nil, invalid("to", "must be a YYYY-MM-DD date")
		}
		t = t.AddDate(0, 0, 1)
		to = &t
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, invalid("from", "must not be after to")
	}
	return from, to, nil
}

func sortedKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func recordOutcome(operation string, err error) {
	obs.IncSaleOperation(operation, outcomeLabel(err))
}

func outcomeLabel(err error) string {
	var (
		validation *ValidationError
		stock      *InsufficientStockError
		conflict   *ConcurrentModificationError
		perm       *PermissionError
		failure    *CommitFailure
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &stock):
		return "insufficient_stock"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.As(err, &perm):
		return "forbidden"
	case errors.As(err, &failure):
		return "commit_failure"
	case errors.Is(err, ErrSaleNotFound):
		return "not_found"
	case errors.Is(err, ErrSaleVoided):
		return "voided"
	case errors.Is(err, ErrApprovalRequired):
		return "approval_required"
	default:
		return "error"
	}
}

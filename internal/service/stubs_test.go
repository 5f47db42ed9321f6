package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"sourcedpos/internal/authz"
	"sourcedpos/internal/model"
	"sourcedpos/internal/repository"
	"sourcedpos/internal/service"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// ── Stubs ─────────────────────────────────────────────────────────────────────

// stubProductRepo is an in-memory ProductRepository. steal removes units
// right before the conditional decrement, simulating a terminal that won the
// race after our advisory read.
type stubProductRepo struct {
	mu       sync.Mutex
	products map[int64]*model.Product
	steal    map[int64]int
}

func newStubProductRepo(products ...model.Product) *stubProductRepo {
	r := &stubProductRepo{products: map[int64]*model.Product{}, steal: map[int64]int{}}
	for i := range products {
		p := products[i]
		r.products[p.ID] = &p
	}
	return r
}

func (r *stubProductRepo) stock(id int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products[id].StockQuantity
}

func (r *stubProductRepo) FindByID(_ context.Context, id int64) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *stubProductRepo) FindByIDs(_ context.Context, ids []int64) (map[int64]*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]*model.Product{}
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *stubProductRepo) ListLowStock(_ context.Context, ids []int64) ([]model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Product
	for _, id := range ids {
		p, ok := r.products[id]
		if ok && p.TrackStock && p.Active && p.StockQuantity <= p.ReorderLevel {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *stubProductRepo) DecrementStockTx(_ *gorm.DB, id int64, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || !p.TrackStock {
		return 0, repository.ErrStockUnavailable
	}
	if n := r.steal[id]; n > 0 {
		p.StockQuantity -= n
		delete(r.steal, id)
	}
	if p.StockQuantity < qty {
		return 0, repository.ErrStockUnavailable
	}
	p.StockQuantity -= qty
	return p.StockQuantity, nil
}

func (r *stubProductRepo) RestoreStockTx(_ *gorm.DB, id int64, qty int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || !p.TrackStock {
		return 0, gorm.ErrRecordNotFound
	}
	p.StockQuantity += qty
	return p.StockQuantity, nil
}

func (r *stubProductRepo) DB() *gorm.DB { return nil }

var _ repository.ProductRepository = (*stubProductRepo)(nil)

// stubSaleRepo stores deep copies so the service can never mutate stored
// state except through the repository methods. writes counts every
// successful mutation. interfere runs before each versioned write and may
// change the stored sale to simulate another session.
type stubSaleRepo struct {
	mu        sync.Mutex
	sales     map[int64]*model.Sale
	nextID    int64
	nextItem  int64
	nextPX    int64
	writes    int
	interfere func(s *model.Sale)
}

func newStubSaleRepo() *stubSaleRepo {
	return &stubSaleRepo{sales: map[int64]*model.Sale{}}
}

func cloneSale(s *model.Sale) *model.Sale {
	cp := *s
	cp.Items = append([]model.SaleLineItem(nil), s.Items...)
	cp.PartExchanges = append([]model.PartExchangeItem(nil), s.PartExchanges...)
	cp.Settlements = append([]model.ConsignmentSettlement(nil), s.Settlements...)
	return &cp
}

func (r *stubSaleRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sales)
}

func (r *stubSaleRepo) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *stubSaleRepo) stored(id int64) *model.Sale {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSale(r.sales[id])
}

func (r *stubSaleRepo) FindByID(_ context.Context, id int64) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return cloneSale(s), nil
}

func (r *stubSaleRepo) FindByClientRef(_ context.Context, ref string) (*model.Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sales {
		if s.ClientRef != nil && *s.ClientRef == ref {
			return cloneSale(s), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubSaleRepo) matching(q repository.SaleQuery) []model.Sale {
	var out []model.Sale
	for _, s := range r.sales {
		if q.Voided != nil && s.IsVoided != *q.Voided {
			continue
		}
		if q.StaffID != "" && s.StaffID != q.StaffID {
			continue
		}
		if q.From != nil && s.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && !s.CreatedAt.Before(*q.To) {
			continue
		}
		out = append(out, *cloneSale(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *stubSaleRepo) List(_ context.Context, q repository.SaleQuery) ([]model.Sale, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.matching(q)
	total := int64(len(all))
	if q.Limit > 0 {
		start := (q.Page - 1) * q.Limit
		if start > len(all) {
			start = len(all)
		}
		end := start + q.Limit
		if end > len(all) {
			end = len(all)
		}
		all = all[start:end]
	}
	return all, total, nil
}

func (r *stubSaleRepo) Summary(_ context.Context, q repository.SaleQuery) (repository.SaleTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := false
	q.Voided = &active
	var t repository.SaleTotals
	for _, s := range r.matching(q) {
		t.Count++
		t.Subtotal = t.Subtotal.Add(s.Subtotal)
		t.DiscountTotal = t.DiscountTotal.Add(s.DiscountTotal)
		t.TaxTotal = t.TaxTotal.Add(s.TaxTotal)
		t.Total = t.Total.Add(s.Total)
		t.PartExchangeTotal = t.PartExchangeTotal.Add(s.PartExchangeTotal)
	}
	return t, nil
}

func (r *stubSaleRepo) CreateTx(_ *gorm.DB, s *model.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.ID = r.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	for i := range s.Items {
		r.nextItem++
		s.Items[i].ID = r.nextItem
		s.Items[i].SaleID = s.ID
	}
	for i := range s.PartExchanges {
		r.nextPX++
		s.PartExchanges[i].ID = r.nextPX
		s.PartExchanges[i].SaleID = &s.ID
	}
	stored := cloneSale(s)
	stored.Settlements = nil
	r.sales[s.ID] = stored
	r.writes++
	return nil
}

func (r *stubSaleRepo) UpdateItemTx(_ *gorm.DB, item *model.SaleLineItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[item.SaleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range s.Items {
		if s.Items[i].ID == item.ID {
			s.Items[i].Quantity = item.Quantity
			s.Items[i].UnitPrice = item.UnitPrice
			s.Items[i].Discount = item.Discount
			r.writes++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// guarded applies the version guard shared by every header write.
func (r *stubSaleRepo) guarded(id int64, version int, apply func(s *model.Sale)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sales[id]
	if !ok {
		return repository.ErrVersionConflict
	}
	if r.interfere != nil {
		r.interfere(s)
		r.interfere = nil
	}
	if s.Version != version || s.IsVoided {
		return repository.ErrVersionConflict
	}
	apply(s)
	s.Version++
	r.writes++
	return nil
}

func (r *stubSaleRepo) UpdateHeaderTx(_ *gorm.DB, id int64, version int, u repository.SaleHeaderUpdate) error {
	return r.guarded(id, version, func(s *model.Sale) {
		s.Subtotal = u.Subtotal
		s.DiscountTotal = u.DiscountTotal
		s.TaxTotal = u.TaxTotal
		s.Total = u.Total
		s.PartExchangeTotal = u.PartExchangeTotal
		s.Notes = u.Notes
		s.EditedAt = u.EditedAt
	})
}

func (r *stubSaleRepo) MarkVoidedTx(_ *gorm.DB, id int64, version int, reason string, at time.Time) error {
	return r.guarded(id, version, func(s *model.Sale) {
		s.IsVoided = true
		s.VoidReason = &reason
		s.VoidedAt = &at
	})
}

func (r *stubSaleRepo) UpdateCommissionOverrideTx(_ *gorm.DB, id int64, version int, amount *decimal.Decimal, reason *string) error {
	return r.guarded(id, version, func(s *model.Sale) {
		s.CommissionOverride = amount
		s.CommissionOverrideReason = reason
	})
}

func (r *stubSaleRepo) DB() *gorm.DB { return nil }

var _ repository.SaleRepository = (*stubSaleRepo)(nil)

type stubMovementRepo struct {
	movements []model.StockMovement
}

func (r *stubMovementRepo) CreateTx(_ *gorm.DB, m *model.StockMovement) error {
	m.ID = int64(len(r.movements) + 1)
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubMovementRepo) ListBySale(_ context.Context, saleID int64) ([]model.StockMovement, error) {
	var out []model.StockMovement
	for _, m := range r.movements {
		if m.SaleID != nil && *m.SaleID == saleID {
			out = append(out, m)
		}
	}
	return out, nil
}

var _ repository.StockMovementRepository = (*stubMovementRepo)(nil)

// stubCashRepo fails every CreateTx once failCreate is set.
type stubCashRepo struct {
	movements  []model.CashMovement
	failCreate error
}

func (r *stubCashRepo) CreateTx(_ *gorm.DB, m *model.CashMovement) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	m.ID = int64(len(r.movements) + 1)
	r.movements = append(r.movements, *m)
	return nil
}

func (r *stubCashRepo) SumBySaleTx(_ *gorm.DB, saleID int64) (decimal.Decimal, error) {
	return r.sumBySale(saleID), nil
}

func (r *stubCashRepo) sumBySale(saleID int64) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range r.movements {
		if m.SaleID != nil && *m.SaleID == saleID {
			sum = sum.Add(m.Amount)
		}
	}
	return sum
}

var _ repository.CashRepository = (*stubCashRepo)(nil)

type stubSettlementRepo struct {
	settlements []model.ConsignmentSettlement
}

func (r *stubSettlementRepo) CreateTx(_ *gorm.DB, s *model.ConsignmentSettlement) error {
	for _, existing := range r.settlements {
		if existing.ProductID == s.ProductID && existing.SaleID == s.SaleID {
			return fmt.Errorf("duplicate settlement for product %d on sale %d", s.ProductID, s.SaleID)
		}
	}
	s.ID = int64(len(r.settlements) + 1)
	r.settlements = append(r.settlements, *s)
	return nil
}

func (r *stubSettlementRepo) ListBySale(_ context.Context, saleID int64) ([]model.ConsignmentSettlement, error) {
	var out []model.ConsignmentSettlement
	for _, s := range r.settlements {
		if s.SaleID == saleID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSettlementRepo) CancelUnpaidTx(_ *gorm.DB, saleID int64, at time.Time) (int64, error) {
	var paid int64
	for i := range r.settlements {
		s := &r.settlements[i]
		if s.SaleID != saleID {
			continue
		}
		switch {
		case s.PaidAt != nil:
			paid++
		case s.CancelledAt == nil:
			t := at
			s.CancelledAt = &t
		}
	}
	return paid, nil
}

func (r *stubSettlementRepo) UpdateAmountsTx(_ *gorm.DB, id int64, salePrice, payout decimal.Decimal) error {
	for i := range r.settlements {
		s := &r.settlements[i]
		if s.ID != id {
			continue
		}
		if s.PaidAt != nil || s.CancelledAt != nil {
			return repository.ErrSettlementClosed
		}
		s.SalePrice, s.PayoutAmount = salePrice, payout
		return nil
	}
	return repository.ErrSettlementClosed
}

var _ repository.SettlementRepository = (*stubSettlementRepo)(nil)

type stubAuditRepo struct {
	entries []model.SaleAuditEntry
}

func (r *stubAuditRepo) CreateTx(_ *gorm.DB, e *model.SaleAuditEntry) error {
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, *e)
	return nil
}

func (r *stubAuditRepo) ListBySale(_ context.Context, saleID int64) ([]model.SaleAuditEntry, error) {
	var out []model.SaleAuditEntry
	for _, e := range r.entries {
		if e.SaleID == saleID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *stubAuditRepo) actions(saleID int64) []string {
	var out []string
	for _, e := range r.entries {
		if e.SaleID == saleID {
			out = append(out, e.Action)
		}
	}
	return out
}

var _ repository.AuditRepository = (*stubAuditRepo)(nil)

type stubPartExchangeRepo struct {
	items []model.PartExchangeItem
}

func (r *stubPartExchangeRepo) CreateTx(_ *gorm.DB, p *model.PartExchangeItem) error {
	p.ID = int64(1000 + len(r.items))
	r.items = append(r.items, *p)
	return nil
}

var _ repository.PartExchangeRepository = (*stubPartExchangeRepo)(nil)

type stubCommissionRepo struct {
	settings map[string]*model.StaffCommissionSetting
}

func (r *stubCommissionRepo) FindByStaffID(_ context.Context, staffID string) (*model.StaffCommissionSetting, error) {
	return r.settings[staffID], nil
}

func (r *stubCommissionRepo) ListByStaffIDs(_ context.Context, staffIDs []string) (map[string]*model.StaffCommissionSetting, error) {
	out := map[string]*model.StaffCommissionSetting{}
	for _, id := range staffIDs {
		if s, ok := r.settings[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

var _ repository.CommissionRepository = (*stubCommissionRepo)(nil)

type stubAlerts struct {
	mu    sync.Mutex
	calls [][]int64
	err   error
}

func (a *stubAlerts) EnqueueStockAlert(_ context.Context, ids []int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, append([]int64(nil), ids...))
	return a.err
}

var _ service.StockAlertPublisher = (*stubAlerts)(nil)

// ── Fixture ───────────────────────────────────────────────────────────────────

const (
	ringID     int64 = 1 // tracked, 20% tax
	broochID   int64 = 2 // consignment
	resizeID   int64 = 3 // service, untracked
	necklaceID int64 = 4 // one unit left
	retiredID  int64 = 5 // inactive
	supplierID int64 = 7
)

var (
	staff   = authz.Actor{StaffID: "s-anna", StaffName: "Anna", Role: authz.RoleStaff}
	manager = authz.Actor{StaffID: "s-ben", StaffName: "Ben", Role: authz.RoleManager}
	owner   = authz.Actor{StaffID: "s-cara", StaffName: "Cara", Role: authz.RoleOwner}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, d(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func catalog() []model.Product {
	supplier := supplierID
	return []model.Product{
		{ID: ringID, SKU: "RING-001", Name: "Gold ring", UnitPrice: d("100"), UnitCost: d("40"),
			TaxRate: d("20"), StockQuantity: 5, ReorderLevel: 3, TrackStock: true, Active: true},
		{ID: broochID, SKU: "BRCH-001", Name: "Consigned brooch", UnitPrice: d("250"), UnitCost: d("150"),
			StockQuantity: 3, TrackStock: true, IsConsignment: true, SupplierID: &supplier, Active: true},
		{ID: resizeID, SKU: "SVC-RESIZE", Name: "Ring resize", UnitPrice: d("30"),
			TaxRate: d("20"), TrackStock: false, Active: true},
		{ID: necklaceID, SKU: "NECK-001", Name: "Pearl necklace", UnitPrice: d("80"), UnitCost: d("30"),
			StockQuantity: 1, TrackStock: true, Active: true},
		{ID: retiredID, SKU: "OLD-001", Name: "Retired bangle", UnitPrice: d("60"), UnitCost: d("20"),
			StockQuantity: 10, TrackStock: true, Active: false},
	}
}

type fixture struct {
	svc         service.SaleService
	commissions service.CommissionService
	products    *stubProductRepo
	sales       *stubSaleRepo
	movements   *stubMovementRepo
	cash        *stubCashRepo
	settlements *stubSettlementRepo
	audit       *stubAuditRepo
	px          *stubPartExchangeRepo
	staffRates  *stubCommissionRepo
	alerts      *stubAlerts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products:    newStubProductRepo(catalog()...),
		sales:       newStubSaleRepo(),
		movements:   &stubMovementRepo{},
		cash:        &stubCashRepo{},
		settlements: &stubSettlementRepo{},
		audit:       &stubAuditRepo{},
		px:          &stubPartExchangeRepo{},
		staffRates:  &stubCommissionRepo{settings: map[string]*model.StaffCommissionSetting{}},
		alerts:      &stubAlerts{},
	}
	f.svc = service.NewSaleService(service.SaleServiceDeps{
		Sales:         f.sales,
		Products:      f.products,
		PartExchanges: f.px,
		Settlements:   f.settlements,
		Cash:          f.cash,
		Audit:         f.audit,
		Ledger:        service.NewStockLedger(f.products, f.movements),
		Linker:        service.NewSettlementLinker(f.settlements),
		Alerts:        f.alerts,
	})
	f.commissions = service.NewCommissionService(f.sales, f.staffRates, f.audit, nil, service.CommissionConfig{
		Enabled:     true,
		DefaultRate: d("5"),
		Basis:       model.CommissionBasisRevenue,
	})
	return f
}

func isPermissionError(err error) bool {
	var perm *service.PermissionError
	return errors.As(err, &perm)
}

func isConflict(err error) bool {
	var conflict *service.ConcurrentModificationError
	return errors.As(err, &conflict)
}

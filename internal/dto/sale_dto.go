package dto

import "github.com/shopspring/decimal"

// ─── Filter / List ──────────────────────────────────────────────────────────

// SaleFilter is bound from the query string of GET /v1/sales and
// GET /v1/sales/summary.
type SaleFilter struct {
	From       string `form:"from"` // YYYY-MM-DD, inclusive
	To         string `form:"to"`   // YYYY-MM-DD, inclusive
	StaffID    string `form:"staff_id"`
	LocationID *int64 `form:"location_id"`
	Voided     string `form:"voided,default=false" validate:"oneof=false true all"`
	Page       int    `form:"page,default=1"       validate:"min=1"`
	Limit      int    `form:"limit,default=50"     validate:"min=1,max=200"`
}

type SaleListResponse struct {
	Data  []SaleResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// SaleSummaryResponse aggregates active (non-voided) sales only.
type SaleSummaryResponse struct {
	Count             int64           `json:"count"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountTotal     decimal.Decimal `json:"discount_total"`
	TaxTotal          decimal.Decimal `json:"tax_total"`
	Total             decimal.Decimal `json:"total"`
	PartExchangeTotal decimal.Decimal `json:"part_exchange_total"`
	NetTotal          decimal.Decimal `json:"net_total"`
}

// ─── Request DTOs ────────────────────────────────────────────────────────────

type SaleLineRequest struct {
	ProductID int64 `json:"product_id" validate:"required,min=1"`
	Quantity  int   `json:"quantity"   validate:"required,min=1"`
	// UnitPrice overrides the catalog price (negotiated pieces). Nil = catalog.
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"omitempty,min=0"`
	Discount  decimal.Decimal  `json:"discount"   validate:"min=0"`
}

type DiscountRequest struct {
	Type  string          `json:"type"  validate:"required,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value" validate:"min=0"`
}

type PartExchangeRequest struct {
	Title              string          `json:"title"     validate:"required,min=1,max=200"`
	Category           *string         `json:"category"`
	Description        *string         `json:"description"`
	Serial             *string         `json:"serial"`
	Allowance          decimal.Decimal `json:"allowance" validate:"required,gt=0"`
	CustomerName       *string         `json:"customer_name"`
	CustomerContact    *string         `json:"customer_contact"`
	CustomerSupplierID *int64          `json:"customer_supplier_id"`
	Notes              *string         `json:"notes"`
}

// QuoteRequest prices a cart without persisting anything.
type QuoteRequest struct {
	Items         []SaleLineRequest     `json:"items"          validate:"dive"`
	Discount      *DiscountRequest      `json:"discount"       validate:"omitempty"`
	PartExchanges []PartExchangeRequest `json:"part_exchanges" validate:"dive"`
}

type CommitSaleRequest struct {
	Items         []SaleLineRequest     `json:"items"          validate:"required,min=1,dive"`
	Discount      *DiscountRequest      `json:"discount"       validate:"omitempty"`
	PartExchanges []PartExchangeRequest `json:"part_exchanges" validate:"dive"`
	Payment       string                `json:"payment"        validate:"required,oneof=cash card transfer other"`
	CustomerID    *int64                `json:"customer_id"`
	CustomerName  *string               `json:"customer_name"  validate:"omitempty,max=200"`
	CustomerEmail *string               `json:"customer_email" validate:"omitempty,email"`
	Notes         *string               `json:"notes"`
	SignatureData *string               `json:"signature_data"`
	LocationID    *int64                `json:"location_id"`
	// ClientRef is generated by the terminal per cart; a resubmission with the
	// same ref returns the sale already committed.
	ClientRef *string `json:"client_ref" validate:"omitempty,uuid"`
	// ApproveNegative must be set, by someone allowed to, when trade-ins
	// exceed the sale total.
	ApproveNegative bool `json:"approve_negative"`
}

// LineSnapshot is the line as the editor last saw it.
type LineSnapshot struct {
	Quantity  int             `json:"quantity"   validate:"min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"min=0"`
	Discount  decimal.Decimal `json:"discount"   validate:"min=0"`
}

type EditLineRequest struct {
	ItemID    int64           `json:"item_id"    validate:"required,min=1"`
	Original  LineSnapshot    `json:"original"`
	Quantity  int             `json:"quantity"   validate:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"min=0"`
	Discount  decimal.Decimal `json:"discount"   validate:"min=0"`
}

type EditSaleRequest struct {
	Version int               `json:"version" validate:"required,min=1"`
	Lines   []EditLineRequest `json:"lines"   validate:"required,min=1,dive"`
	Reason  string            `json:"reason"  validate:"max=500"`
	// ApproveNegative is required, as on commit, when the edit leaves the
	// trade-ins worth more than the sale.
	ApproveNegative bool `json:"approve_negative"`
}

type VoidSaleRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
	// Version, when sent, must match the stored one.
	Version *int `json:"version" validate:"omitempty,min=1"`
}

type AddPartExchangeRequest struct {
	PartExchangeRequest
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type QuoteLineResponse struct {
	Gross             decimal.Decimal `json:"gross"`
	LineDiscount      decimal.Decimal `json:"line_discount"`
	AllocatedDiscount decimal.Decimal `json:"allocated_discount"`
	Taxable           decimal.Decimal `json:"taxable"`
	Tax               decimal.Decimal `json:"tax"`
}

type QuoteResponse struct {
	Subtotal          decimal.Decimal     `json:"subtotal"`
	DiscountTotal     decimal.Decimal     `json:"discount_total"`
	TaxTotal          decimal.Decimal     `json:"tax_total"`
	Total             decimal.Decimal     `json:"total"`
	PartExchangeTotal decimal.Decimal     `json:"part_exchange_total"`
	NetTotal          decimal.Decimal     `json:"net_total"`
	Lines             []QuoteLineResponse `json:"lines"`
}

type SaleItemResponse struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	Product          string          `json:"product"`
	Quantity         int             `json:"quantity"`
	OriginalQuantity int             `json:"original_quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	Discount         decimal.Decimal `json:"discount"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Revenue          decimal.Decimal `json:"revenue"`
}

type PartExchangeResponse struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	Serial    *string         `json:"serial,omitempty"`
	Allowance decimal.Decimal `json:"allowance"`
	Status    string          `json:"status"`
	ProductID *int64          `json:"product_id"`
}

type SettlementResponse struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	SupplierID   int64           `json:"supplier_id"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	PayoutAmount decimal.Decimal `json:"payout_amount"`
	PaidAt       *string         `json:"paid_at"`
	CancelledAt  *string         `json:"cancelled_at"`
}

type SaleResponse struct {
	ID                int64                  `json:"id"`
	StaffID           string                 `json:"staff_id"`
	StaffMemberName   string                 `json:"staff_member_name"`
	Payment           string                 `json:"payment"`
	Subtotal          decimal.Decimal        `json:"subtotal"`
	DiscountTotal     decimal.Decimal        `json:"discount_total"`
	TaxTotal          decimal.Decimal        `json:"tax_total"`
	Total             decimal.Decimal        `json:"total"`
	PartExchangeTotal decimal.Decimal        `json:"part_exchange_total"`
	NetTotal          decimal.Decimal        `json:"net_total"`
	DiscountType      *string                `json:"discount_type"`
	DiscountValue     decimal.Decimal        `json:"discount_value"`
	CustomerID        *int64                 `json:"customer_id"`
	CustomerName      *string                `json:"customer_name"`
	CustomerEmail     *string                `json:"customer_email"`
	Notes             *string                `json:"notes"`
	LocationID        *int64                 `json:"location_id"`
	IsVoided          bool                   `json:"is_voided"`
	VoidReason        *string                `json:"void_reason"`
	VoidedAt          *string                `json:"voided_at"`
	EditedAt          *string                `json:"edited_at"`
	ClientRef         *string                `json:"client_ref,omitempty"`
	Version           int                    `json:"version"`
	CreatedAt         string                 `json:"created_at"`
	Items             []SaleItemResponse     `json:"items"`
	PartExchanges     []PartExchangeResponse `json:"part_exchanges"`
	Settlements       []SettlementResponse   `json:"settlements,omitempty"`
}

type LineChangeResponse struct {
	ItemID     int64 `json:"item_id"`
	HasChanges bool  `json:"has_changes"`
	StockDelta int   `json:"stock_delta"`
}

type EditSaleResponse struct {
	HasChanges bool                 `json:"has_changes"`
	Lines      []LineChangeResponse `json:"lines"`
	Sale       SaleResponse         `json:"sale"`
}

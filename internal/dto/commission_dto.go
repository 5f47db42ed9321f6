package dto

import "github.com/shopspring/decimal"

type CommissionFilter struct {
	From string `form:"from"`
	To   string `form:"to"`
}

type CommissionResponse struct {
	SaleID         int64            `json:"sale_id"`
	StaffID        string           `json:"staff_id"`
	Rate           decimal.Decimal  `json:"rate"`
	Basis          string           `json:"basis"`
	Revenue        decimal.Decimal  `json:"revenue"`
	Profit         decimal.Decimal  `json:"profit"`
	Calculated     decimal.Decimal  `json:"calculated"`
	Override       *decimal.Decimal `json:"override"`
	OverrideReason *string          `json:"override_reason"`
	// Commission is the amount actually payable: Override when set, else Calculated.
	Commission decimal.Decimal `json:"commission"`
	Version    int             `json:"version"`
}

type CommissionOverrideRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"min=0"`
	Reason string          `json:"reason" validate:"required,min=3,max=500"`
}

type StaffCommissionSummary struct {
	StaffID    string          `json:"staff_id"`
	StaffName  string          `json:"staff_name"`
	Sales      int             `json:"sales"`
	Revenue    decimal.Decimal `json:"revenue"`
	Profit     decimal.Decimal `json:"profit"`
	Commission decimal.Decimal `json:"commission"`
}

package service

import (
	"fmt"
	"sort"

	"sourcedpos/internal/model"
	"sourcedpos/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SettlementLinker creates the payout obligations owed to consignors when
// their goods sell. It runs inside the commit transaction.
type SettlementLinker struct {
	repo repository.SettlementRepository
}

func NewSettlementLinker(repo repository.SettlementRepository) *SettlementLinker {
	return &SettlementLinker{repo: repo}
}

// LinkTx writes one settlement per consignment product on the sale. Several
// lines of the same product are merged, so the (product, sale) pair stays
// unique. Payout is fixed from the cost snapshot on the lines.
func (l *SettlementLinker) LinkTx(tx *gorm.DB, sale *model.Sale, products map[int64]*model.Product) ([]model.ConsignmentSettlement, error) {
	byProduct := map[int64]int64{} // product -> supplier
	for _, item := range sale.Items {
		p := products[item.ProductID]
		if p == nil || !p.IsConsignment {
			continue
		}
		if p.SupplierID == nil {
			return nil, fmt.Errorf("consignment product %d has no supplier", p.ID)
		}
		byProduct[p.ID] = *p.SupplierID
	}

	ids := make([]int64, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.ConsignmentSettlement, 0, len(ids))
	for _, id := range ids {
		price, payout := consignmentAmounts(sale.Items, id)
		s := model.ConsignmentSettlement{
			ProductID:    id,
			SaleID:       sale.ID,
			SupplierID:   byProduct[id],
			SalePrice:    price,
			PayoutAmount: payout,
		}
		if err := l.repo.CreateTx(tx, &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// RelinkTx recomputes price and payout of the given settlements from the
// sale's current lines. It runs inside the edit transaction; a settlement
// paid or cancelled in the meantime fails with repository.ErrSettlementClosed.
func (l *SettlementLinker) RelinkTx(tx *gorm.DB, sale *model.Sale, settlements []*model.ConsignmentSettlement) error {
	for _, st := range settlements {
		price, payout := consignmentAmounts(sale.Items, st.ProductID)
		if err := l.repo.UpdateAmountsTx(tx, st.ID, price, payout); err != nil {
			return err
		}
		st.SalePrice, st.PayoutAmount = price, payout
	}
	return nil
}

// consignmentAmounts sums revenue and cost of every line of productID.
func consignmentAmounts(items []model.SaleLineItem, productID int64) (price, payout decimal.Decimal) {
	for _, item := range items {
		if item.ProductID == productID {
			price = price.Add(item.Revenue())
			payout = payout.Add(item.Cost())
		}
	}
	return price.Round(2), payout.Round(2)
}

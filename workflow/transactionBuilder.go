package workflow

import (
	"fmt"
	"sort"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
)

// StockRequirement is the net quantity one checkout consumes from a single
// product or variant, merged across plain lines and combo expansions.
type StockRequirement struct {
	ProductId int
	VariantId *int
	Name      string
	Qty       decimal.Decimal
	Tracked   bool
}

// BuildLines resolves the command's cart into persistable transaction items
// plus the merged stock requirements, sorted ascending by product id (then
// variant id) so every checkout acquires row locks in the same order.
func BuildLines(cmd *CreateTransactionCommand, combos map[int]*models.Combo, cat *Catalog) ([]models.TransactionItem, []StockRequirement, error) {
	items := make([]models.TransactionItem, 0, len(cmd.Lines))
	merged := make(map[string]*StockRequirement)

	addRequirement := func(productId int, variantId *int, name string, qty decimal.Decimal, tracked bool) {
		key := itemKey(productId, variantId)
		if req, ok := merged[key]; ok {
			req.Qty = req.Qty.Add(qty)
			return
		}
		merged[key] = &StockRequirement{
			ProductId: productId,
			VariantId: variantId,
			Name:      name,
			Qty:       qty,
			Tracked:   tracked,
		}
	}

	for _, line := range cmd.Lines {
		switch line.ItemType {
		case models.TransactionItemTypeProduct:
			entry, err := cat.resolveSellable(*line.ProductId, line.VariantId)
			if err != nil {
				return nil, nil, err
			}

			unitPrice := entry.salesPrice
			if line.UnitPrice != nil {
				unitPrice = *line.UnitPrice
			}
			items = append(items, models.TransactionItem{
				ItemType:   models.TransactionItemTypeProduct,
				ProductId:  line.ProductId,
				VariantId:  line.VariantId,
				Name:       entry.name,
				Qty:        line.Qty,
				UnitPrice:  unitPrice,
				TotalPrice: unitPrice.Mul(line.Qty),
			})
			addRequirement(*line.ProductId, line.VariantId, entry.name, line.Qty, entry.tracked)

		case models.TransactionItemTypeCombo:
			combo, ok := combos[*line.ComboId]
			if !ok {
				return nil, nil, fmt.Errorf("%w: combo %d", ErrNotFound, *line.ComboId)
			}
			requirements, err := ExpandCombo(combo, line.Qty, cat)
			if err != nil {
				return nil, nil, err
			}

			// Combo price override at sale time is accepted as sent.
			unitPrice := combo.Price
			if line.UnitPrice != nil {
				unitPrice = *line.UnitPrice
			}
			details := make([]models.TransactionItemDetail, 0, len(requirements))
			for _, req := range requirements {
				details = append(details, models.TransactionItemDetail{
					ProductId: req.ProductId,
					VariantId: req.VariantId,
					Qty:       req.Qty,
					UnitCost:  req.UnitCost,
				})
				entry, _ := cat.lookup(req.ProductId, req.VariantId)
				addRequirement(req.ProductId, req.VariantId, req.Name, req.Qty, entry.tracked)
			}
			items = append(items, models.TransactionItem{
				ItemType:   models.TransactionItemTypeCombo,
				ComboId:    line.ComboId,
				Name:       combo.Name,
				Qty:        line.Qty,
				UnitPrice:  unitPrice,
				TotalPrice: unitPrice.Mul(line.Qty),
				Details:    details,
			})

		default:
			return nil, nil, fmt.Errorf("unknown item type %q", line.ItemType)
		}
	}

	requirements := make([]StockRequirement, 0, len(merged))
	for _, req := range merged {
		requirements = append(requirements, *req)
	}
	sortRequirements(requirements)
	return items, requirements, nil
}

// sortRequirements fixes the lock acquisition order: ascending product id,
// nil variant before concrete variants, then ascending variant id.
func sortRequirements(requirements []StockRequirement) {
	sort.Slice(requirements, func(i, j int) bool {
		a, b := requirements[i], requirements[j]
		if a.ProductId != b.ProductId {
			return a.ProductId < b.ProductId
		}
		if (a.VariantId == nil) != (b.VariantId == nil) {
			return a.VariantId == nil
		}
		if a.VariantId == nil {
			return false
		}
		return *a.VariantId < *b.VariantId
	})
}

// CheckStockRequirements pre-validates the merged requirements against the
// catalog snapshot, reporting every shortfall at once. The stock ledger
// re-checks under row locks; this exists to fail whole carts early with a
// complete error message.
func CheckStockRequirements(requirements []StockRequirement, cat *Catalog) error {
	var shortfalls []StockShortfall
	for _, req := range requirements {
		if !req.Tracked {
			continue
		}
		entry, ok := cat.lookup(req.ProductId, req.VariantId)
		if !ok {
			return fmt.Errorf("%w: product %d", ErrNotFound, req.ProductId)
		}
		if entry.available.LessThan(req.Qty) {
			shortfalls = append(shortfalls, StockShortfall{
				ProductId: req.ProductId,
				VariantId: req.VariantId,
				Name:      req.Name,
				Requested: req.Qty,
				Available: entry.available,
			})
		}
	}
	if len(shortfalls) > 0 {
		return &InsufficientStockError{Shortfalls: shortfalls}
	}
	return nil
}

// Totals is the monetary summary of one checkout.
type Totals struct {
	Subtotal            decimal.Decimal
	DiscountAmount      decimal.Decimal
	TaxAmount           decimal.Decimal
	ServiceChargeAmount decimal.Decimal
	TotalAmount         decimal.Decimal
	ChangeAmount        decimal.Decimal
}

// ComputeTotals derives the monetary summary from resolved items. Tax and
// service charge apply to the undiscounted subtotal; change may be negative
// (partial payment is the caller's concern, not rejected here).
func ComputeTotals(items []models.TransactionItem, discount decimal.Decimal, discountType string, taxRate decimal.Decimal, serviceChargeRate decimal.Decimal, paidAmount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice)
	}

	discountAmount := utils.CalculateDiscountAmount(subtotal, discount, discountType)
	taxAmount := utils.CalculatePercentAmount(subtotal, taxRate)
	serviceChargeAmount := utils.CalculatePercentAmount(subtotal, serviceChargeRate)
	totalAmount := subtotal.Sub(discountAmount).Add(taxAmount).Add(serviceChargeAmount)

	return Totals{
		Subtotal:            subtotal,
		DiscountAmount:      discountAmount,
		TaxAmount:           taxAmount,
		ServiceChargeAmount: serviceChargeAmount,
		TotalAmount:         totalAmount,
		ChangeAmount:        paidAmount.Sub(totalAmount),
	}
}

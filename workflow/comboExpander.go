package workflow

import (
	"fmt"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
)

// Catalog is an in-memory snapshot of the products and variants a single
// checkout touches. The engine builds it from locked rows; tests build it
// by hand. Quantities in the catalog are advisory: the stock ledger re-checks
// under row locks before anything is written.
type Catalog struct {
	entries map[string]catalogEntry
}

type catalogEntry struct {
	name       string
	active     bool
	tracked    bool
	available  decimal.Decimal
	salesPrice decimal.Decimal
	unitCost   decimal.Decimal
}

func itemKey(productId int, variantId *int) string {
	if variantId == nil {
		return fmt.Sprintf("p%d", productId)
	}
	return fmt.Sprintf("p%d/v%d", productId, *variantId)
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]catalogEntry)}
}

func (c *Catalog) AddProduct(p *models.Product) {
	c.entries[itemKey(p.ID, nil)] = catalogEntry{
		name:       p.Name,
		active:     p.Active(),
		tracked:    p.TracksStock(),
		available:  p.StockQty,
		salesPrice: p.SalesPrice,
		unitCost:   p.PurchasePrice,
	}
}

func (c *Catalog) AddVariant(productName string, v *models.ProductVariant) {
	c.entries[itemKey(v.ProductId, &v.ID)] = catalogEntry{
		name:       productName + " / " + v.Name,
		active:     v.Active(),
		tracked:    v.TracksStock(),
		available:  v.StockQty,
		salesPrice: v.SalesPrice,
		unitCost:   v.PurchasePrice,
	}
}

func (c *Catalog) lookup(productId int, variantId *int) (catalogEntry, bool) {
	entry, ok := c.entries[itemKey(productId, variantId)]
	return entry, ok
}

// resolveSellable looks up an entry and enforces the active flags. A variant
// line needs both the variant row and its parent product active: deactivating
// a product takes every variant off sale at once.
func (c *Catalog) resolveSellable(productId int, variantId *int) (catalogEntry, error) {
	entry, ok := c.lookup(productId, variantId)
	if !ok {
		return catalogEntry{}, fmt.Errorf("%w: product %d", ErrNotFound, productId)
	}
	if !entry.active {
		return catalogEntry{}, fmt.Errorf("%w: %s", ErrInactiveProduct, entry.name)
	}
	if variantId != nil {
		parent, ok := c.lookup(productId, nil)
		if !ok {
			return catalogEntry{}, fmt.Errorf("%w: product %d", ErrNotFound, productId)
		}
		if !parent.active {
			return catalogEntry{}, fmt.Errorf("%w: %s", ErrInactiveProduct, parent.name)
		}
	}
	return entry, nil
}

// ComboRequirement is one constituent of an expanded combo line: the total
// quantity consumed across all requested combo units, with the cost frozen
// from the catalog at expansion time.
type ComboRequirement struct {
	ProductId int
	VariantId *int
	Name      string
	Qty       decimal.Decimal
	UnitCost  decimal.Decimal
}

// ExpandCombo resolves a combo line of comboQty units into per-constituent
// requirements. Every constituent must exist in the catalog and be active.
func ExpandCombo(combo *models.Combo, comboQty decimal.Decimal, cat *Catalog) ([]ComboRequirement, error) {
	if !combo.Active() {
		return nil, ErrInactiveCombo
	}
	if len(combo.Items) == 0 {
		return nil, ErrInvalidCombo
	}

	requirements := make([]ComboRequirement, 0, len(combo.Items))
	for _, item := range combo.Items {
		entry, err := cat.resolveSellable(item.ProductId, item.VariantId)
		if err != nil {
			return nil, fmt.Errorf("combo %q: %w", combo.Name, err)
		}
		requirements = append(requirements, ComboRequirement{
			ProductId: item.ProductId,
			VariantId: item.VariantId,
			Name:      entry.name,
			Qty:       item.Qty.Mul(comboQty),
			UnitCost:  entry.unitCost,
		})
	}
	return requirements, nil
}

// MaxPurchasable returns how many units of the combo the current stock
// covers: the minimum over stock-tracked constituents of
// floor(available / qtyPerUnit). limited is false when no constituent is
// stock-tracked, in which case qty is meaningless.
func MaxPurchasable(combo *models.Combo, cat *Catalog) (qty decimal.Decimal, limited bool, err error) {
	if len(combo.Items) == 0 {
		return decimal.Zero, false, ErrInvalidCombo
	}

	for _, item := range combo.Items {
		entry, ok := cat.lookup(item.ProductId, item.VariantId)
		if !ok {
			return decimal.Zero, false, fmt.Errorf("%w: combo %q constituent product %d", ErrNotFound, combo.Name, item.ProductId)
		}
		if !entry.tracked {
			continue
		}
		max := entry.available.Div(item.Qty).Floor()
		if max.IsNegative() {
			max = decimal.Zero
		}
		if !limited || max.LessThan(qty) {
			qty = max
		}
		limited = true
	}
	return qty, limited, nil
}

// CheckComboStock pre-validates one combo line against the catalog snapshot
// and reports every failing constituent at once.
func CheckComboStock(combo *models.Combo, comboQty decimal.Decimal, cat *Catalog) error {
	requirements, err := ExpandCombo(combo, comboQty, cat)
	if err != nil {
		return err
	}

	var shortfalls []StockShortfall
	for _, req := range requirements {
		entry, _ := cat.lookup(req.ProductId, req.VariantId)
		if !entry.tracked {
			continue
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
		stockErr := &InsufficientStockError{Shortfalls: shortfalls}
		if maxQty, limited, err := MaxPurchasable(combo, cat); err == nil && limited {
			stockErr.MaxQty = &maxQty
		}
		return stockErr
	}
	return nil
}

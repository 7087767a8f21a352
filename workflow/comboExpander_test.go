package workflow

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
)

func burgerSet() *models.Combo {
	return &models.Combo{
		ID:       1,
		Name:     "Burger Set",
		Price:    dec(5000),
		IsActive: boolp(true),
		Items: []models.ComboItem{
			{ProductId: 1, Qty: dec(2)}, // buns per set
			{ProductId: 2, Qty: dec(1)}, // patty per set
		},
	}
}

func TestExpandCombo_MultipliesPerUnitQuantities(t *testing.T) {
	cat := NewCatalog()
	cat.AddProduct(testProduct(1, "Bun", 500, 10))
	cat.AddProduct(testProduct(2, "Patty", 1500, 10))

	requirements, err := ExpandCombo(burgerSet(), dec(3), cat)
	if err != nil {
		t.Fatalf("ExpandCombo: %v", err)
	}
	if len(requirements) != 2 {
		t.Fatalf("got %d requirements, want 2", len(requirements))
	}
	if !requirements[0].Qty.Equal(dec(6)) {
		t.Fatalf("bun qty = %s, want 6", requirements[0].Qty)
	}
	if !requirements[1].Qty.Equal(dec(3)) {
		t.Fatalf("patty qty = %s, want 3", requirements[1].Qty)
	}
}

func TestExpandCombo_FreezesCostFromCatalog(t *testing.T) {
	cat := NewCatalog()
	bun := testProduct(1, "Bun", 500, 10)
	bun.PurchasePrice = dec(120)
	cat.AddProduct(bun)
	patty := testProduct(2, "Patty", 1500, 10)
	patty.PurchasePrice = dec(800)
	cat.AddProduct(patty)

	requirements, err := ExpandCombo(burgerSet(), dec(1), cat)
	if err != nil {
		t.Fatalf("ExpandCombo: %v", err)
	}
	if !requirements[0].UnitCost.Equal(dec(120)) {
		t.Fatalf("bun cost = %s, want 120", requirements[0].UnitCost)
	}
	if !requirements[1].UnitCost.Equal(dec(800)) {
		t.Fatalf("patty cost = %s, want 800", requirements[1].UnitCost)
	}
}

func TestExpandCombo_InactiveCombo(t *testing.T) {
	combo := burgerSet()
	combo.IsActive = boolp(false)

	_, err := ExpandCombo(combo, dec(1), NewCatalog())
	if !errors.Is(err, ErrInactiveCombo) {
		t.Fatalf("err = %v, want ErrInactiveCombo", err)
	}
}

func TestExpandCombo_EmptyCombo(t *testing.T) {
	combo := burgerSet()
	combo.Items = nil

	_, err := ExpandCombo(combo, dec(1), NewCatalog())
	if !errors.Is(err, ErrInvalidCombo) {
		t.Fatalf("err = %v, want ErrInvalidCombo", err)
	}
}

func TestExpandCombo_InactiveParentBlocksVariantConstituent(t *testing.T) {
	bun := testProduct(1, "Bun", 500, 10)
	inactive := false
	bun.IsActive = &inactive

	cat := NewCatalog()
	cat.AddProduct(bun)
	cat.AddVariant(bun.Name, &models.ProductVariant{
		ID:         9,
		ProductId:  1,
		Name:       "Sesame",
		SalesPrice: dec(600),
		StockQty:   dec(10),
		TrackStock: boolp(true),
		IsActive:   boolp(true),
	})
	cat.AddProduct(testProduct(2, "Patty", 1500, 10))

	combo := burgerSet()
	combo.Items[0].VariantId = intp(9)

	_, err := ExpandCombo(combo, dec(1), cat)
	if !errors.Is(err, ErrInactiveProduct) {
		t.Fatalf("err = %v, want ErrInactiveProduct", err)
	}
}

func TestMaxPurchasable_MinOverConstituents(t *testing.T) {
	cat := NewCatalog()
	cat.AddProduct(testProduct(1, "Bun", 500, 5))   // 2 per set -> floor(5/2) = 2
	cat.AddProduct(testProduct(2, "Patty", 1500, 2)) // 1 per set -> 2

	qty, limited, err := MaxPurchasable(burgerSet(), cat)
	if err != nil {
		t.Fatalf("MaxPurchasable: %v", err)
	}
	if !limited {
		t.Fatal("expected stock-limited combo")
	}
	if !qty.Equal(dec(2)) {
		t.Fatalf("max = %s, want 2", qty)
	}
}

func TestMaxPurchasable_UntrackedConstituentsDoNotLimit(t *testing.T) {
	cat := NewCatalog()
	bun := testProduct(1, "Bun", 500, 0)
	tracked := false
	bun.TrackStock = &tracked
	cat.AddProduct(bun)
	cat.AddProduct(testProduct(2, "Patty", 1500, 7))

	qty, limited, err := MaxPurchasable(burgerSet(), cat)
	if err != nil {
		t.Fatalf("MaxPurchasable: %v", err)
	}
	if !limited {
		t.Fatal("patty is tracked; combo should be limited")
	}
	if !qty.Equal(dec(7)) {
		t.Fatalf("max = %s, want 7", qty)
	}
}

func TestMaxPurchasable_NegativeFloorClampsToZero(t *testing.T) {
	cat := NewCatalog()
	bun := testProduct(1, "Bun", 500, 0)
	bun.StockQty = decimal.NewFromInt(-1)
	cat.AddProduct(bun)
	cat.AddProduct(testProduct(2, "Patty", 1500, 5))

	qty, limited, err := MaxPurchasable(burgerSet(), cat)
	if err != nil {
		t.Fatalf("MaxPurchasable: %v", err)
	}
	if !limited || !qty.Equal(decimal.Zero) {
		t.Fatalf("max = %s limited=%v, want 0 limited=true", qty, limited)
	}
}

func TestCheckComboStock_ListsFailingConstituents(t *testing.T) {
	cat := NewCatalog()
	cat.AddProduct(testProduct(1, "Bun", 500, 3))
	cat.AddProduct(testProduct(2, "Patty", 1500, 1))

	err := CheckComboStock(burgerSet(), dec(2), cat) // needs 4 buns, 2 patties
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err %T does not carry shortfalls", err)
	}
	if len(insufficient.Shortfalls) != 2 {
		t.Fatalf("got %d shortfalls, want 2", len(insufficient.Shortfalls))
	}
	if insufficient.Shortfalls[0].Name != "Bun" || !insufficient.Shortfalls[0].Requested.Equal(dec(4)) {
		t.Fatalf("unexpected first shortfall: %+v", insufficient.Shortfalls[0])
	}
	// 3 buns cover floor(3/2) = 1 set; the error tells the client how many.
	if insufficient.MaxQty == nil || !insufficient.MaxQty.Equal(dec(1)) {
		t.Fatalf("max purchasable = %v, want 1", insufficient.MaxQty)
	}
}

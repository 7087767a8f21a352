package workflow

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSortLedgerEntries_AscendingProductThenVariant(t *testing.T) {
	v2, v5 := 2, 5
	entries := []LedgerEntry{
		{ProductId: 9},
		{ProductId: 3, VariantId: &v5},
		{ProductId: 3, VariantId: &v2},
		{ProductId: 3},
		{ProductId: 1},
	}

	sortLedgerEntries(entries)

	want := []struct {
		productId int
		variantId *int
	}{
		{1, nil},
		{3, nil},
		{3, &v2},
		{3, &v5},
		{9, nil},
	}
	for i, w := range want {
		if entries[i].ProductId != w.productId || !intPtrEqual(entries[i].VariantId, w.variantId) {
			t.Fatalf("position %d: got product %d variant %v", i, entries[i].ProductId, entries[i].VariantId)
		}
	}
}

// fakeStockStore mimics the row-locked read-modify-write the ledger performs:
// per-product serialization, reject when the balance would go negative.
type fakeStockStore struct {
	mu  sync.Mutex
	qty map[int]decimal.Decimal
}

func (s *fakeStockStore) sell(productId int, qty decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	after := s.qty[productId].Sub(qty)
	if after.IsNegative() {
		return false
	}
	s.qty[productId] = after
	return true
}

// Two cashiers race for the last unit; the serialized check must let exactly
// one through regardless of interleaving.
func TestSerializedSale_LastUnitSellsOnce(t *testing.T) {
	for run := 0; run < 200; run++ {
		store := &fakeStockStore{qty: map[int]decimal.Decimal{1: decimal.NewFromInt(1)}}

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = store.sell(1, decimal.NewFromInt(1))
			}(i)
		}
		wg.Wait()

		sold := 0
		for _, ok := range results {
			if ok {
				sold++
			}
		}
		if sold != 1 {
			t.Fatalf("run %d: %d sales succeeded, want exactly 1", run, sold)
		}
		if !store.qty[1].IsZero() {
			t.Fatalf("run %d: remaining qty = %s, want 0", run, store.qty[1])
		}
	}
}

// Overlapping multi-product sales acquire per-product locks in ascending
// order; this pins the ordering contract the sorter provides.
func TestLedgerEntryLess_IsStrictWeakOrdering(t *testing.T) {
	v1 := 1
	a := LedgerEntry{ProductId: 2}
	b := LedgerEntry{ProductId: 2, VariantId: &v1}

	if ledgerEntryLess(a, a) {
		t.Fatal("entry compared less than itself")
	}
	if !ledgerEntryLess(a, b) {
		t.Fatal("nil variant must order before concrete variant")
	}
	if ledgerEntryLess(b, a) {
		t.Fatal("ordering must be antisymmetric")
	}
}

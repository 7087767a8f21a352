// ledger-verify recomputes every stock-tracked product's and variant's
// quantity from the movement ledger and compares it to the persisted
// stock_qty. Any mismatch means something wrote quantities outside the
// ledger gate.
//
// Example:
//
//	go run ./cmd/ledger-verify -product-id=137
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func main() {
	productID := flag.Int("product-id", 0, "Check a single product (0 = all)")
	limit := flag.Int("limit", 0, "Max mismatches to print (0 = no limit)")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	mismatches := 0
	checked := 0

	q := db.Model(&models.Product{}).Where("track_stock = ?", true)
	if *productID > 0 {
		q = q.Where("id = ?", *productID)
	}
	var products []models.Product
	if err := q.Find(&products).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to load products: %v\n", err)
		os.Exit(1)
	}

	report := func(kind string, id int, name string, persisted, ledger decimal.Decimal) {
		mismatches++
		if *limit > 0 && mismatches > *limit {
			return
		}
		fmt.Printf("MISMATCH %s id=%d name=%q stock_qty=%s ledger_sum=%s diff=%s\n",
			kind, id, name, persisted.String(), ledger.String(), persisted.Sub(ledger).String())
	}

	for _, p := range products {
		checked++
		sum, err := sumDeltas(db, p.ID, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sum failed for product %d: %v\n", p.ID, err)
			os.Exit(1)
		}
		if !sum.Equal(p.StockQty) {
			report("product", p.ID, p.Name, p.StockQty, sum)
		}

		var variants []models.ProductVariant
		if err := db.Where("product_id = ? AND track_stock = ?", p.ID, true).Find(&variants).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to load variants for product %d: %v\n", p.ID, err)
			os.Exit(1)
		}
		for _, v := range variants {
			checked++
			vid := v.ID
			sum, err := sumDeltas(db, p.ID, &vid)
			if err != nil {
				fmt.Fprintf(os.Stderr, "sum failed for variant %d: %v\n", v.ID, err)
				os.Exit(1)
			}
			if !sum.Equal(v.StockQty) {
				report("variant", v.ID, v.Name, v.StockQty, sum)
			}
		}
	}

	fmt.Printf("checked=%d mismatches=%d\n", checked, mismatches)
	if mismatches > 0 {
		os.Exit(2)
	}
}

func sumDeltas(db *gorm.DB, productId int, variantId *int) (decimal.Decimal, error) {
	var raw *string
	q := db.Model(&models.StockMovement{}).
		Select("SUM(qty)").
		Where("product_id = ?", productId)
	if variantId != nil {
		q = q.Where("variant_id = ?", *variantId)
	} else {
		q = q.Where("variant_id IS NULL")
	}
	if err := q.Scan(&raw).Error; err != nil {
		return decimal.Zero, err
	}
	if raw == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(*raw)
}

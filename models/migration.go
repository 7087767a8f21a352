package models

import (
	"log"

	"bitbucket.org/mmdatafocus/pos_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Outlet{}, &OutletSetting{},
		&User{},
		&Product{}, &ProductVariant{},
		&Combo{}, &ComboItem{},
		&Transaction{}, &TransactionItem{}, &TransactionItemDetail{},
		&StockMovement{},
		&InvoiceSequence{},
		&IdempotencyKey{},
		&AuditLog{},
	)
	if err != nil {
		log.Fatal(err)
	}
}

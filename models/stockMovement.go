package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is the append-only inventory ledger. Rows are never updated
// or deleted; AfterQty must equal the product/variant's persisted quantity at
// the instant the row was written (same DB transaction).
type StockMovement struct {
	ID            int               `gorm:"primary_key" json:"id"`
	Uuid          string            `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	OutletId      int               `gorm:"index;not null" json:"outlet_id"`
	ProductId     int               `gorm:"index:idx_movement_item,priority:1;not null" json:"product_id"`
	VariantId     *int              `gorm:"index:idx_movement_item,priority:2" json:"variant_id"`
	Type          StockMovementType `gorm:"type:enum('in','out','adjust','sale','refund');not null" json:"type"`
	Qty           decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"qty"` // signed delta
	BeforeQty     decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"before_qty"`
	AfterQty      decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"after_qty"`
	TransactionId *int              `gorm:"index" json:"transaction_id"` // null for manual adjustments
	UserId        int               `gorm:"index;not null" json:"user_id"`
	Notes         string            `gorm:"type:text" json:"notes"`
	CorrelationId string            `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// MovementsForTransaction returns the ledger rows caused by one transaction,
// in insertion order.
func MovementsForTransaction(tx *gorm.DB, transactionId int) ([]*StockMovement, error) {
	var movements []*StockMovement
	if err := tx.Where("transaction_id = ?", transactionId).
		Order("id").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// SumMovementDeltas recomputes the net quantity change for one product or
// variant from the ledger. For any stock-tracked entity this must equal
// current_qty - opening_qty at all times.
func SumMovementDeltas(ctx context.Context, productId int, variantId *int) (decimal.Decimal, error) {
	db := config.GetDB()
	var raw *string
	q := db.WithContext(ctx).Model(&StockMovement{}).
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

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transaction is the sale aggregate. It is created complete (items, details,
// stock movements) in one DB transaction; after that only status transitions
// and the void/refund audit fields may change.
type Transaction struct {
	ID                    int               `gorm:"primary_key" json:"id"`
	Uuid                  string            `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	InvoiceNumber         string            `gorm:"size:50;uniqueIndex;not null" json:"invoice_number"`
	OutletId              int               `gorm:"index;not null" json:"outlet_id"`
	CashierId             int               `gorm:"index;not null" json:"cashier_id"`
	CustomerId            *int              `gorm:"index" json:"customer_id"`
	Status                TransactionStatus `gorm:"type:enum('pending','completed','voided','refunded');default:pending" json:"status"`
	Subtotal              decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"subtotal"`
	DiscountAmount        decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"discount_amount"`
	TaxAmount             decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	ServiceChargeAmount   decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"service_charge_amount"`
	TotalAmount           decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaidAmount            decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	ChangeAmount          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"change_amount"`
	PaymentMethod         PaymentMethod     `gorm:"type:enum('cash','card','qr','transfer');default:cash" json:"payment_method"`
	Notes                 string            `gorm:"type:text" json:"notes"`
	OriginalTransactionId *int              `gorm:"index" json:"original_transaction_id"` // set on refund transactions
	RefundTransactionId   *int              `gorm:"index" json:"refund_transaction_id"`   // set on refunded originals
	RefundAmount          decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"refund_amount"`
	RefundReason          *string           `gorm:"type:text" json:"refund_reason"`
	RefundedAt            *time.Time        `json:"refunded_at"`
	RefundedBy            *int              `json:"refunded_by"`
	VoidReason            *string           `gorm:"type:text" json:"void_reason"`
	VoidedAt              *time.Time        `json:"voided_at"`
	VoidedBy              *int              `json:"voided_by"`
	Items                 []TransactionItem `gorm:"foreignKey:TransactionId" json:"items"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// TransactionItem is one cart line. Exactly one of ProductId/ComboId is set,
// discriminated by ItemType. Immutable once the parent completes; refunds add
// mirrored negative-quantity items under the refund transaction instead.
type TransactionItem struct {
	ID             int                     `gorm:"primary_key" json:"id"`
	TransactionId  int                     `gorm:"index;not null" json:"transaction_id"`
	ItemType       TransactionItemType     `gorm:"type:enum('product','combo');not null" json:"item_type"`
	ProductId      *int                    `gorm:"index" json:"product_id"`
	VariantId      *int                    `gorm:"index" json:"variant_id"`
	ComboId        *int                    `gorm:"index" json:"combo_id"`
	Name           string                  `gorm:"size:150;not null" json:"name"` // frozen at sale time
	Qty            decimal.Decimal         `gorm:"type:decimal(20,4);not null" json:"qty"`
	UnitPrice      decimal.Decimal         `gorm:"type:decimal(20,4);not null" json:"unit_price"`
	TotalPrice     decimal.Decimal         `gorm:"type:decimal(20,4);not null" json:"total_price"`
	RefundedItemId *int                    `gorm:"index" json:"refunded_item_id"` // on refund lines: the original item
	Details        []TransactionItemDetail `gorm:"foreignKey:TransactionItemId" json:"details"`
}

// TransactionItemDetail exists only for combo lines: one row per constituent
// (product, variant?) expanded at sale time, with qty and cost frozen so a
// later combo edit can never change what a void/refund reverses.
type TransactionItemDetail struct {
	ID                int             `gorm:"primary_key" json:"id"`
	TransactionItemId int             `gorm:"index;not null" json:"transaction_item_id"`
	ProductId         int             `gorm:"index;not null" json:"product_id"`
	VariantId         *int            `gorm:"index" json:"variant_id"`
	Qty               decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"` // total for the line, not per combo unit
	UnitCost          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"unit_cost"`
}

func GetTransaction(ctx context.Context, id int) (*Transaction, error) {
	return utils.FetchModel[Transaction](ctx, id, "Items", "Items.Details")
}

func GetTransactionByUuid(ctx context.Context, uuid string) (*Transaction, error) {
	if uuid == "" {
		return nil, errors.New("uuid is required")
	}
	db := config.GetDB()
	var result Transaction
	err := db.WithContext(ctx).
		Preload("Items").
		Preload("Items.Details").
		Where("uuid = ?", uuid).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}

// fetchTransactionForChange loads the aggregate inside the caller's DB
// transaction with the header row locked, so concurrent void/refund attempts
// serialize on the same row.
func fetchTransactionForChange(tx *gorm.DB, id int) (*Transaction, error) {
	var result Transaction
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	if err := tx.
		Preload("Details").
		Where("transaction_id = ?", result.ID).
		Order("id").
		Find(&result.Items).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchTransactionForChange is the exported entry used by the engine.
func FetchTransactionForChange(tx *gorm.DB, id int) (*Transaction, error) {
	return fetchTransactionForChange(tx, id)
}

// CountTransactionsForOutletDay counts an outlet's transactions created on
// one calendar day. Reporting helper; the invoice sequencer keeps its own
// counter row instead of re-counting.
func CountTransactionsForOutletDay(ctx context.Context, outletId int, day time.Time) (int64, error) {
	db := config.GetDB()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int64
	err := db.WithContext(ctx).Model(&Transaction{}).
		Where("outlet_id = ? AND created_at >= ? AND created_at < ?", outletId, start, end).
		Count(&count).Error
	return count, err
}

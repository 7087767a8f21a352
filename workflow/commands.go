package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/pos_backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// CreateTransactionLine is one cart line as sent by the POS client. Exactly
// one of ProductId/ComboId must be set, matching ItemType.
type CreateTransactionLine struct {
	ItemType  models.TransactionItemType `json:"item_type" validate:"required,oneof=product combo"`
	ProductId *int                       `json:"product_id" validate:"required_if=ItemType product,excluded_if=ItemType combo"`
	VariantId *int                       `json:"variant_id" validate:"excluded_if=ItemType combo"`
	ComboId   *int                       `json:"combo_id" validate:"required_if=ItemType combo,excluded_if=ItemType product"`
	Qty       decimal.Decimal            `json:"qty"`
	// UnitPrice overrides the catalog price when set. The cashier's terminal
	// is trusted; overrides are recorded as sent.
	UnitPrice *decimal.Decimal `json:"unit_price"`
}

type CreateTransactionCommand struct {
	// ClientRef is the POS terminal's UUID for this sale. Offline replays
	// with the same ref dedupe to the first stored result.
	ClientRef     string                  `json:"client_ref" validate:"omitempty,uuid"`
	OutletId      int                     `json:"outlet_id" validate:"required,gt=0"`
	CustomerId    *int                    `json:"customer_id"`
	Lines         []CreateTransactionLine `json:"lines" validate:"required,min=1,dive"`
	Discount      decimal.Decimal         `json:"discount"`
	DiscountType  string                  `json:"discount_type" validate:"omitempty,oneof=P F"`
	PaymentMethod models.PaymentMethod    `json:"payment_method" validate:"required,oneof=cash card qr transfer"`
	PaidAmount    decimal.Decimal         `json:"paid_amount"`
	Notes         string                  `json:"notes"`
}

func (cmd *CreateTransactionCommand) Validate() error {
	if err := validate.Struct(cmd); err != nil {
		return err
	}
	for _, line := range cmd.Lines {
		if !line.Qty.IsPositive() {
			return errors.New("line qty must be positive")
		}
		if line.UnitPrice != nil && line.UnitPrice.IsNegative() {
			return errors.New("unit price override must not be negative")
		}
	}
	if cmd.Discount.IsNegative() {
		return errors.New("discount must not be negative")
	}
	if cmd.PaidAmount.IsNegative() {
		return errors.New("paid amount must not be negative")
	}
	return nil
}

type VoidTransactionCommand struct {
	TransactionId int    `json:"transaction_id" validate:"required,gt=0"`
	Reason        string `json:"reason" validate:"required"`
}

func (cmd *VoidTransactionCommand) Validate() error {
	return validate.Struct(cmd)
}

// RefundTransactionLine names one original transaction item and the quantity
// to take back. Quantity must not exceed what the item still holds.
type RefundTransactionLine struct {
	ItemId int             `json:"item_id" validate:"required,gt=0"`
	Qty    decimal.Decimal `json:"qty"`
}

type RefundTransactionCommand struct {
	TransactionId int `json:"transaction_id" validate:"required,gt=0"`
	// Lines empty means full refund of every item.
	Lines  []RefundTransactionLine `json:"lines" validate:"dive"`
	Reason string                  `json:"reason" validate:"required"`
}

func (cmd *RefundTransactionCommand) Validate() error {
	if err := validate.Struct(cmd); err != nil {
		return err
	}
	for _, line := range cmd.Lines {
		if !line.Qty.IsPositive() {
			return errors.New("refund qty must be positive")
		}
	}
	return nil
}

type AdjustStockCommand struct {
	OutletId  int             `json:"outlet_id" validate:"required,gt=0"`
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	VariantId *int            `json:"variant_id"`
	Delta     decimal.Decimal `json:"delta"`
	Reason    string          `json:"reason" validate:"required"`
}

func (cmd *AdjustStockCommand) Validate() error {
	if err := validate.Struct(cmd); err != nil {
		return err
	}
	if cmd.Delta.IsZero() {
		return errors.New("delta must not be zero")
	}
	return nil
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
)

type Product struct {
	ID                  int              `gorm:"primary_key" json:"id"`
	OutletId            *int             `gorm:"index" json:"outlet_id"` // null = global catalog
	Name                string           `gorm:"size:100;not null" json:"name"`
	Description         string           `gorm:"type:text" json:"description"`
	Sku                 string           `gorm:"size:100;not null" json:"sku"`
	Barcode             string           `gorm:"index;size:100" json:"barcode"`
	SalesPrice          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	PurchasePrice       decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	TrackStock          *bool            `gorm:"not null;default:true" json:"track_stock"`
	StockQty            decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"stock_qty"`
	StockAlertThreshold decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"stock_alert_threshold"`
	IsActive            *bool            `gorm:"not null;default:true" json:"is_active"`
	Variants            []ProductVariant `gorm:"foreignKey:ProductId" json:"variants"`
	CreatedAt           time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	OutletId            *int              `json:"outlet_id"`
	Name                string            `json:"name" validate:"required"`
	Description         string            `json:"description"`
	Sku                 string            `json:"sku" validate:"required"`
	Barcode             string            `json:"barcode"`
	SalesPrice          decimal.Decimal   `json:"sales_price"`
	PurchasePrice       decimal.Decimal   `json:"purchase_price"`
	TrackStock          *bool             `json:"track_stock"`
	StockAlertThreshold decimal.Decimal   `json:"stock_alert_threshold"`
	Variants            []NewProductVariant `json:"variants"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewProduct) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Product](ctx, "sku", input.Sku, id); err != nil {
		return err
	}
	if input.OutletId != nil {
		if err := utils.ValidateResourceId[Outlet](ctx, *input.OutletId); err != nil {
			return errors.New("outlet not found")
		}
	}
	return nil
}

// CreateProduct inserts a catalog row with zero stock. Opening stock enters
// through the stock ledger so every quantity has a movement row.
func CreateProduct(ctx context.Context, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	trackStock := input.TrackStock
	if trackStock == nil {
		trackStock = utils.NewTrue()
	}

	variants := make([]ProductVariant, 0, len(input.Variants))
	for _, v := range input.Variants {
		variants = append(variants, ProductVariant{
			Name:          v.Name,
			Sku:           v.Sku,
			SalesPrice:    v.SalesPrice,
			PurchasePrice: v.PurchasePrice,
			TrackStock:    trackStock,
			IsActive:      utils.NewTrue(),
		})
	}

	product := Product{
		OutletId:            input.OutletId,
		Name:                input.Name,
		Description:         input.Description,
		Sku:                 input.Sku,
		Barcode:             input.Barcode,
		SalesPrice:          input.SalesPrice,
		PurchasePrice:       input.PurchasePrice,
		TrackStock:          trackStock,
		StockQty:            decimal.Zero,
		StockAlertThreshold: input.StockAlertThreshold,
		IsActive:            utils.NewTrue(),
		Variants:            variants,
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func UpdateProduct(ctx context.Context, id int, input *NewProduct) (*Product, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	product, err := utils.FetchModel[Product](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// StockQty is deliberately absent: quantity changes only flow through the
	// stock ledger.
	if err = db.WithContext(ctx).Model(&product).
		Updates(map[string]interface{}{
			"OutletId":            input.OutletId,
			"Name":                input.Name,
			"Description":         input.Description,
			"Sku":                 input.Sku,
			"Barcode":             input.Barcode,
			"SalesPrice":          input.SalesPrice,
			"PurchasePrice":       input.PurchasePrice,
			"StockAlertThreshold": input.StockAlertThreshold,
		}).Error; err != nil {
		return nil, err
	}

	return product, nil
}

func GetProduct(ctx context.Context, id int, associations ...string) (*Product, error) {
	return utils.FetchModel[Product](ctx, id, associations...)
}

func (p *Product) TracksStock() bool {
	return utils.DereferencePtr(p.TrackStock)
}

func (p *Product) Active() bool {
	return utils.DereferencePtr(p.IsActive)
}

// IsLowStock reports whether the persisted quantity sits at or under the
// alert threshold. Meaningless when the product is not stock-tracked.
func (p *Product) IsLowStock() bool {
	if !p.TracksStock() || p.StockAlertThreshold.IsZero() {
		return false
	}
	return p.StockQty.LessThanOrEqual(p.StockAlertThreshold)
}

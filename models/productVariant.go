package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
)

// ProductVariant is independently stock-tracked; its quantity moves through
// the same ledger gate as the parent product's.
type ProductVariant struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	ProductId           int             `gorm:"index;not null" json:"product_id"`
	Name                string          `gorm:"size:100;not null" json:"name"`
	Sku                 string          `gorm:"size:100" json:"sku"`
	SalesPrice          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_price"`
	PurchasePrice       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"purchase_price"`
	TrackStock          *bool           `gorm:"not null;default:true" json:"track_stock"`
	StockQty            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_qty"`
	StockAlertThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"stock_alert_threshold"`
	IsActive            *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProductVariant struct {
	Name          string          `json:"name" validate:"required"`
	Sku           string          `json:"sku"`
	SalesPrice    decimal.Decimal `json:"sales_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
}

func GetProductVariant(ctx context.Context, id int) (*ProductVariant, error) {
	return utils.FetchModel[ProductVariant](ctx, id)
}

// GetVariantOfProduct fetches a variant and checks it belongs to the product.
func GetVariantOfProduct(ctx context.Context, productId int, variantId int) (*ProductVariant, error) {
	db := config.GetDB()
	var variant ProductVariant
	if err := db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantId, productId).
		First(&variant).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &variant, nil
}

func (v *ProductVariant) TracksStock() bool {
	return utils.DereferencePtr(v.TrackStock)
}

func (v *ProductVariant) Active() bool {
	return utils.DereferencePtr(v.IsActive)
}

package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Combo is a fixed-price bundle of products/variants sold as one line item.
type Combo struct {
	ID        int             `gorm:"primary_key" json:"id"`
	OutletId  *int            `gorm:"index" json:"outlet_id"` // null = global
	Name      string          `gorm:"size:100;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"price"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	Items     []ComboItem     `gorm:"foreignKey:ComboId" json:"items"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type ComboItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ComboId   int             `gorm:"index;not null" json:"combo_id"`
	ProductId int             `gorm:"index;not null" json:"product_id"`
	VariantId *int            `gorm:"index" json:"variant_id"`
	Qty       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"qty"` // per one combo unit
	SortOrder int             `gorm:"default:0" json:"sort_order"`
}

type NewCombo struct {
	OutletId *int            `json:"outlet_id"`
	Name     string          `json:"name" validate:"required"`
	Price    decimal.Decimal `json:"price"`
	Items    []NewComboItem  `json:"items" validate:"required,min=1,dive"`
}

type NewComboItem struct {
	ProductId int             `json:"product_id" validate:"required,gt=0"`
	VariantId *int            `json:"variant_id"`
	Qty       decimal.Decimal `json:"qty"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCombo) validate(ctx context.Context, id int) error {
	if len(input.Items) == 0 {
		return errors.New("combo requires at least one item")
	}
	productIds := make([]int, 0, len(input.Items))
	for _, item := range input.Items {
		if !item.Qty.IsPositive() {
			return errors.New("combo item qty must be positive")
		}
		productIds = append(productIds, item.ProductId)
	}
	if err := utils.ValidateResourcesId[Product](ctx, productIds); err != nil {
		return errors.New("combo product not found")
	}
	for _, item := range input.Items {
		if item.VariantId != nil {
			if _, err := GetVariantOfProduct(ctx, item.ProductId, *item.VariantId); err != nil {
				return errors.New("combo variant not found")
			}
		}
	}
	if input.OutletId != nil {
		if err := utils.ValidateResourceId[Outlet](ctx, *input.OutletId); err != nil {
			return errors.New("outlet not found")
		}
	}
	return nil
}

func mapComboItems(input []NewComboItem) []ComboItem {
	items := make([]ComboItem, 0, len(input))
	for i, item := range input {
		items = append(items, ComboItem{
			ProductId: item.ProductId,
			VariantId: item.VariantId,
			Qty:       item.Qty,
			SortOrder: i,
		})
	}
	return items
}

func CreateCombo(ctx context.Context, input *NewCombo) (*Combo, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	combo := Combo{
		OutletId: input.OutletId,
		Name:     input.Name,
		Price:    input.Price,
		IsActive: utils.NewTrue(),
		Items:    mapComboItems(input.Items),
	}

	db := config.GetDB()
	// db action
	if err := db.WithContext(ctx).Create(&combo).Error; err != nil {
		return nil, err
	}
	return &combo, nil
}

func UpdateCombo(ctx context.Context, id int, input *NewCombo) (*Combo, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	combo, err := utils.FetchModel[Combo](ctx, id)
	if err != nil {
		return nil, err
	}

	items := mapComboItems(input.Items)

	db := config.GetDB()
	tx := db.Begin()
	// db action
	if err = tx.WithContext(ctx).Model(&combo).
		Updates(map[string]interface{}{
			"OutletId": input.OutletId,
			"Name":     input.Name,
			"Price":    input.Price,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.WithContext(ctx).Model(&combo).
		Session(&gorm.Session{FullSaveAssociations: true, SkipHooks: true}).
		Association("Items").
		Unscoped().Replace(&items); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return combo, nil
}

func GetCombo(ctx context.Context, id int) (*Combo, error) {
	return utils.FetchModel[Combo](ctx, id, "Items")
}

func (c *Combo) Active() bool {
	return utils.DereferencePtr(c.IsActive)
}

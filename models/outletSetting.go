package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OutletSetting carries the per-outlet pricing rates the builder reads.
// Absence of a row means both rates default to zero.
type OutletSetting struct {
	ID                int             `gorm:"primary_key" json:"id"`
	OutletId          int             `gorm:"uniqueIndex;not null" json:"outlet_id"`
	TaxRate           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_rate"`
	ServiceChargeRate decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"service_charge_rate"`
	ReceiptFooter     string          `gorm:"type:text" json:"receipt_footer"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutletSetting struct {
	OutletId          int             `json:"outlet_id" validate:"required,gt=0"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	ReceiptFooter     string          `json:"receipt_footer"`
}

// outletRates is the cached projection of the setting row the checkout path
// reads on every sale.
type outletRates struct {
	TaxRate           decimal.Decimal `json:"tax_rate"`
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
}

func outletRatesCacheKey(outletId int) string {
	return fmt.Sprintf("outlet-rates-%d", outletId)
}

func UpsertOutletSetting(ctx context.Context, input *NewOutletSetting) (*OutletSetting, error) {
	if err := utils.ValidateResourceId[Outlet](ctx, input.OutletId); err != nil {
		return nil, errors.New("outlet not found")
	}

	db := config.GetDB()
	var setting OutletSetting
	err := db.WithContext(ctx).Where("outlet_id = ?", input.OutletId).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = OutletSetting{
			OutletId:          input.OutletId,
			TaxRate:           input.TaxRate,
			ServiceChargeRate: input.ServiceChargeRate,
			ReceiptFooter:     input.ReceiptFooter,
		}
		if err := db.WithContext(ctx).Create(&setting).Error; err != nil {
			return nil, err
		}
		_ = config.RemoveRedisKey(outletRatesCacheKey(input.OutletId))
		return &setting, nil
	} else if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).Model(&setting).
		Updates(map[string]interface{}{
			"TaxRate":           input.TaxRate,
			"ServiceChargeRate": input.ServiceChargeRate,
			"ReceiptFooter":     input.ReceiptFooter,
		}).Error; err != nil {
		return nil, err
	}
	_ = config.RemoveRedisKey(outletRatesCacheKey(input.OutletId))
	return &setting, nil
}

// GetOutletRates returns (taxRate, serviceChargeRate) for the outlet,
// defaulting both to zero when no setting row exists. Reads go through the
// redis object cache; UpsertOutletSetting evicts the key.
func GetOutletRates(ctx context.Context, outletId int) (decimal.Decimal, decimal.Decimal, error) {
	cacheKey := outletRatesCacheKey(outletId)
	var cached outletRates
	if found, err := config.GetRedisObject(cacheKey, &cached); err == nil && found {
		return cached.TaxRate, cached.ServiceChargeRate, nil
	}

	db := config.GetDB()
	var setting OutletSetting
	err := db.WithContext(ctx).Where("outlet_id = ?", outletId).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		setting = OutletSetting{OutletId: outletId}
	} else if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	_ = config.SetRedisObject(cacheKey, outletRates{
		TaxRate:           setting.TaxRate,
		ServiceChargeRate: setting.ServiceChargeRate,
	}, time.Hour)
	return setting.TaxRate, setting.ServiceChargeRate, nil
}

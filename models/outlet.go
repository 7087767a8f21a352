package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/pos_backend/config"
	"bitbucket.org/mmdatafocus/pos_backend/utils"
)

type Outlet struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	Code      string    `gorm:"size:10;uniqueIndex;not null" json:"code"`
	Address   string    `gorm:"type:text" json:"address"`
	Phone     string    `gorm:"size:30" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewOutlet struct {
	Name    string `json:"name" validate:"required"`
	Code    string `json:"code" validate:"required,max=10"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// validate input for both create & update. (id = 0 for create)
func (input *NewOutlet) validate(ctx context.Context, id int) error {
	if err := utils.ValidateUnique[Outlet](ctx, "code", input.Code, id); err != nil {
		return err
	}
	return nil
}

func CreateOutlet(ctx context.Context, input *NewOutlet) (*Outlet, error) {
	if err := input.validate(ctx, 0); err != nil {
		return nil, err
	}

	outlet := Outlet{
		Name:     input.Name,
		Code:     input.Code,
		Address:  input.Address,
		Phone:    input.Phone,
		IsActive: utils.NewTrue(),
	}

	db := config.GetDB()
	// db action
	err := db.WithContext(ctx).Create(&outlet).Error
	if err != nil {
		return nil, err
	}
	return &outlet, nil
}

func UpdateOutlet(ctx context.Context, id int, input *NewOutlet) (*Outlet, error) {
	if err := input.validate(ctx, id); err != nil {
		return nil, err
	}

	outlet, err := utils.FetchModel[Outlet](ctx, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	// db action
	if err = db.WithContext(ctx).Model(&outlet).
		Updates(map[string]interface{}{
			"Name":    input.Name,
			"Code":    input.Code,
			"Address": input.Address,
			"Phone":   input.Phone,
		}).Error; err != nil {
		return nil, err
	}

	return outlet, nil
}

func GetOutlet(ctx context.Context, id int) (*Outlet, error) {
	return utils.FetchModel[Outlet](ctx, id)
}

func GetOutletByCode(ctx context.Context, code string) (*Outlet, error) {
	if code == "" {
		return nil, errors.New("outlet code is required")
	}
	db := config.GetDB()
	var outlet Outlet
	if err := db.WithContext(ctx).Where("code = ?", code).First(&outlet).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &outlet, nil
}

func GetOutletAll(ctx context.Context) ([]*Outlet, error) {
	return utils.FetchAllModels[Outlet](ctx)
}

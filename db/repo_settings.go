// db/repo_settings.go
package db

import (
	"context"
	"errors"
	"strings"

	"device_inventory_tool/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsID = 1

// GetSettings 单行配置，不存在时返回空默认值
func (r *Repo) GetSettings(ctx context.Context) (*models.GlobalSettings, error) {
	var s models.GlobalSettings
	err := r.DB.WithContext(ctx).First(&s, settingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.GlobalSettings{ID: settingsID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type SettingsInput struct {
	DefaultDeviceModel string `json:"defaultDeviceModel"`
	DefaultStylus      string `json:"defaultStylus"`
	DefaultCase        string `json:"defaultCase"`
}

func (r *Repo) UpdateSettings(ctx context.Context, in SettingsInput) (*models.GlobalSettings, error) {
	s := models.GlobalSettings{
		ID:                 settingsID,
		DefaultDeviceModel: strings.TrimSpace(in.DefaultDeviceModel),
		DefaultStylus:      strings.TrimSpace(in.DefaultStylus),
		DefaultCase:        strings.TrimSpace(in.DefaultCase),
		UpdatedAt:          r.now(),
	}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"default_device_model", "default_stylus", "default_case", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

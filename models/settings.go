package models

import "time"

// GlobalSettings 单行表（ID 固定为 1）
type GlobalSettings struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	DefaultDeviceModel string    `gorm:"size:200" json:"defaultDeviceModel"`
	DefaultStylus      string    `gorm:"size:120" json:"defaultStylus"`
	DefaultCase        string    `gorm:"size:120" json:"defaultCase"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (GlobalSettings) TableName() string { return "global_settings" }

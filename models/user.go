package models

import (
	"time"
)

type UserRole string

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
)

func (r UserRole) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User 登录账号；会话（Redis）只保存其 ID。
// 停用账号保留记录和其名下数据，但不能再通过鉴权。
type User struct {
	ID          string   `gorm:"primaryKey;type:uuid" json:"id"`
	Username    string   `gorm:"uniqueIndex;size:255;not null" json:"username"`
	DisplayName string   `gorm:"size:255;not null" json:"displayName"`
	Role        UserRole `gorm:"size:20;not null;default:'user';index" json:"role"`
	IsActive    bool     `gorm:"not null;default:true;index" json:"isActive"`
	CreatedBy   *string  `gorm:"type:uuid" json:"createdBy,omitempty"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (User) TableName() string {
	return "app_users"
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

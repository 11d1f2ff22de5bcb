package db

import (
	"context"
	"device_inventory_tool/models"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
	// Now 可在测试中替换
	Now func() time.Time

	viewer Viewer
}

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db, Now: func() time.Time { return time.Now().UTC() }} }

func (r *Repo) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now()
}

// Users

func (r *Repo) TouchUserLogin(ctx context.Context, userID string) error {
	now := r.now()
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_at": now,
			"last_seen_at":  now,
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
		}).Error
}

func (r *Repo) TouchUserSeen(ctx context.Context, userID string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_seen_at", r.now()).Error
}

// 按 ID 查
func (r *Repo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (r *Repo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

// FindOrCreateUser 不存在则创建；isAdmin 只在创建时生效
func (r *Repo) FindOrCreateUser(ctx context.Context, username, newID string, isAdmin bool) (*models.User, error) {
	var u models.User
	err := r.DB.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		role := models.RoleUser
		if isAdmin {
			role = models.RoleAdmin
		}
		u = models.User{ID: newID, Username: username, DisplayName: username, Role: role, IsActive: true}
		if err := r.DB.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	return &u, err
}

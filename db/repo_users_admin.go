// db/repo_users_admin.go
package db

import (
	"context"
	"strings"

	"device_inventory_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repo) SetUserAdmin(ctx context.Context, userID string, isAdmin bool) error {
	role := models.RoleUser
	if isAdmin {
		role = models.RoleAdmin
	}
	return r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"role": role, "is_active": true, "updated_at": r.now()}).Error
}

// CountAdmins 只统计启用中的管理员
func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Count(&n).Error
	return n, err
}

// lockActiveAdmins 锁住所有启用中的管理员行，防止并发降级把最后一个管理员也降掉
func lockActiveAdmins(tx *gorm.DB) ([]string, error) {
	var ids []string
	err := tx.Model(&models.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("role = ? AND is_active = ?", models.RoleAdmin, true).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// 列表（分页 + 关键词，匹配用户名/显示名）
type ListUsersResult struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
}

func (r *Repo) ListUsers(ctx context.Context, q string, page, size int) (ListUsersResult, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		tx = tx.Where(`LOWER(username) LIKE ? ESCAPE '\' OR LOWER(display_name) LIKE ? ESCAPE '\'`, like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return ListUsersResult{}, err
	}

	var users []models.User
	if err := tx.
		Order("created_at DESC, id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error; err != nil {
		return ListUsersResult{}, err
	}
	return ListUsersResult{Users: users, Total: total}, nil
}

type NewUser struct {
	Username    string
	DisplayName string
	Role        models.UserRole
	CreatedBy   string
}

func (r *Repo) CreateUser(ctx context.Context, in NewUser) (*models.User, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if username == "" {
		return nil, validationf("username is required")
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return nil, validationf("unknown role %q", in.Role)
	}
	display := strings.TrimSpace(in.DisplayName)
	if display == "" {
		display = username
	}
	now := r.now()
	u := models.User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: display,
		Role:        in.Role,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.CreatedBy != "" {
		by := in.CreatedBy
		u.CreatedBy = &by
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return conflictf("username %s is taken", username)
		}
		return tx.Create(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserUpdate 只修改非 nil 字段
type UserUpdate struct {
	DisplayName *string
	Role        *models.UserRole
	IsActive    *bool
}

// UpdateUser changes display name, role or active flag. Demoting or
// deactivating the last active admin is refused.
func (r *Repo) UpdateUser(ctx context.Context, id string, in UserUpdate) (*models.User, error) {
	var u models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admins, err := lockActiveAdmins(tx)
		if err != nil {
			return err
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error; err != nil {
			return notFound(err, "user", id)
		}

		upd := map[string]any{}
		if in.DisplayName != nil {
			d := strings.TrimSpace(*in.DisplayName)
			if d == "" {
				return validationf("displayName must not be empty")
			}
			upd["display_name"] = d
		}
		role, active := u.Role, u.IsActive
		if in.Role != nil {
			if !in.Role.Valid() {
				return validationf("unknown role %q", *in.Role)
			}
			role = *in.Role
			upd["role"] = role
		}
		if in.IsActive != nil {
			active = *in.IsActive
			upd["is_active"] = active
		}
		if u.IsAdmin() && u.IsActive && (role != models.RoleAdmin || !active) && len(admins) <= 1 {
			return conflictf("%s is the last active admin", u.Username)
		}
		if len(upd) == 0 {
			return nil
		}
		upd["updated_at"] = r.now()
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(upd).Error; err != nil {
			return err
		}
		return tx.First(&u, "id = ?", u.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeactivateUser 停用账号；名下设备、学生、合同保留
func (r *Repo) DeactivateUser(ctx context.Context, id string) (*models.User, error) {
	inactive := false
	return r.UpdateUser(ctx, id, UserUpdate{IsActive: &inactive})
}

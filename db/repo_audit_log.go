package db

import (
	"context"
	"fmt"

	"device_inventory_tool/models"

	"github.com/google/uuid"
)

const (
	ActionStudentDelete  = "student.delete"
	ActionContractDelete = "contract.delete"
	ActionPurge          = "retention.purge"
	ActionStatusOverride = "device.status_override"
	ActionUserCreate     = "user.create"
	ActionUserUpdate     = "user.update"
	ActionUserDeactivate = "user.deactivate"
)

// Actor 发起操作的账号；CLI / 定时任务用固定名称
type Actor struct {
	ID       string
	Username string
}

func (r *Repo) LogAction(ctx context.Context, actor Actor, action, targetID string, detail *string) (*models.AuditLog, error) {
	log := &models.AuditLog{
		ID:            uuid.NewString(),
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		Action:        action,
		TargetID:      targetID,
		Detail:        detail,
		CreatedAt:     r.now(),
	}
	if err := r.DB.WithContext(ctx).Create(log).Error; err != nil {
		return nil, fmt.Errorf("insert audit log: %w", err)
	}
	return log, nil
}

// ListAuditLog 最新在前；action 为空表示全部
func (r *Repo) ListAuditLog(ctx context.Context, action string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.DB.WithContext(ctx).Order("created_at DESC, id ASC").Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var out []models.AuditLog
	err := q.Find(&out).Error
	return out, err
}

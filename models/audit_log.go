package models

import "time"

// AuditLog 记录破坏性或越权操作（删除学生、清理、状态覆盖…）
type AuditLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID       string    `gorm:"size:64" json:"actorId"`
	ActorUsername string    `gorm:"size:255" json:"actorUsername"`
	Action        string    `gorm:"size:64;index;not null" json:"action"`
	TargetID      string    `gorm:"size:64" json:"targetId,omitempty"`
	Detail        *string   `json:"detail,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (AuditLog) TableName() string { return "audit_log" }

// models/assignment.go
package models

import "time"

const AssignmentTable = "assignments"

// Assignment 一台设备与一个学生的有时限配对；解除后保留作审计
type Assignment struct {
	ID          string     `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID    string     `gorm:"type:uuid;index;not null" json:"deviceId"`
	StudentID   string     `gorm:"type:uuid;index;not null" json:"studentId"`
	UserID      *string    `gorm:"type:uuid;index" json:"userId,omitempty"` // 同设备归属
	AssignedAt  time.Time  `gorm:"index;not null" json:"assignedAt"`
	DissolvedAt *time.Time `json:"dissolvedAt,omitempty"`
	Active      bool       `gorm:"not null;default:true;index" json:"active"`

	ContractID       *string `gorm:"type:uuid" json:"contractId,omitempty"`
	ContractWarning  bool    `gorm:"not null;default:false" json:"contractWarning"`
	WarningDismissed bool    `gorm:"not null;default:false" json:"warningDismissed"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Assignment) TableName() string { return AssignmentTable }

// AssignmentView 带设备编号与学生姓名的列表行
type AssignmentView struct {
	Assignment
	InventoryNumber  string `json:"inventoryNumber"`
	StudentFirstName string `json:"studentFirstName"`
	StudentLastName  string `json:"studentLastName"`
	StudentClass     string `json:"studentClass"`
	ContractFilename string `json:"contractFilename,omitempty"`
}

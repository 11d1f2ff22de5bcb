// models/device.go
package models

import (
	"strings"
	"time"
)

const DeviceTable = "devices"

// DeviceStatus 为封闭枚举；德语显示文字只在 HTTP / 表格边界转换
type DeviceStatus string

const (
	DeviceAvailable DeviceStatus = "available"
	DeviceAssigned  DeviceStatus = "assigned"
	DeviceDefective DeviceStatus = "defective"
	DeviceStolen    DeviceStatus = "stolen"
)

var deviceStatusLabels = map[DeviceStatus]string{
	DeviceAvailable: "verfügbar",
	DeviceAssigned:  "zugewiesen",
	DeviceDefective: "defekt",
	DeviceStolen:    "gestohlen",
}

// ParseDeviceStatus accepts the canonical value or the German label, case-insensitively.
func ParseDeviceStatus(s string) (DeviceStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, label := range deviceStatusLabels {
		if s == string(st) || s == label {
			return st, true
		}
	}
	return "", false
}

func (s DeviceStatus) Label() string {
	if l, ok := deviceStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s DeviceStatus) Valid() bool {
	_, ok := deviceStatusLabels[s]
	return ok
}

// Sticky 状态在解除分配时不会回到 available
func (s DeviceStatus) Sticky() bool { return s == DeviceDefective || s == DeviceStolen }

type Device struct {
	ID              string       `gorm:"type:uuid;primaryKey" json:"id"`
	InventoryNumber string       `gorm:"size:120;uniqueIndex;not null" json:"inventoryNumber"` // ITNr
	SerialNumber    string       `gorm:"size:120" json:"serialNumber"`                         // SNr
	Model           string       `gorm:"size:200" json:"model"`                                // Typ
	StorageSize     string       `gorm:"size:40" json:"storageSize"`
	Stylus          string       `gorm:"size:120" json:"stylus"` // Pencil
	Case            string       `gorm:"column:case_name;size:120" json:"case"`
	AcquisitionYear string       `gorm:"size:10" json:"acquisitionYear"`
	Packaging       string       `gorm:"size:120" json:"packaging"` // Karton
	LoanDate        string       `gorm:"size:40" json:"loanDate,omitempty"`
	Status          DeviceStatus `gorm:"size:20;not null;default:'available';index" json:"status"`

	// UserID 归属账号（导入者）
	UserID              *string   `gorm:"type:uuid;index" json:"userId,omitempty"`
	CurrentAssignmentID *string   `gorm:"type:uuid" json:"currentAssignmentId,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (Device) TableName() string { return DeviceTable }

// DeviceView 设备 + 当前借用学生（若有）
type DeviceView struct {
	Device
	AssignmentID     *string    `json:"assignmentId,omitempty"`
	StudentID        *string    `json:"studentId,omitempty"`
	StudentFirstName *string    `json:"studentFirstName,omitempty"`
	StudentLastName  *string    `json:"studentLastName,omitempty"`
	StudentClass     *string    `json:"studentClass,omitempty"`
	AssignedAt       *time.Time `json:"assignedAt,omitempty"`
}

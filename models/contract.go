// models/contract.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

const ContractTable = "contracts"

// Contract 上传的签字 PDF；AssignmentID 为空即“未分配”，等待人工关联
type Contract struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID *string `gorm:"type:uuid;index" json:"assignmentId,omitempty"`
	UserID       *string `gorm:"type:uuid;index" json:"userId,omitempty"` // 上传者
	Filename     string  `gorm:"size:255;not null" json:"filename"`
	Data         []byte  `json:"-"`
	Size         int64   `gorm:"not null;default:0" json:"size"`

	Fields            datatypes.JSONMap `json:"fields"`
	InventoryNumber   string            `gorm:"size:120;index" json:"inventoryNumber"`
	StudentFirstName  string            `gorm:"size:100" json:"studentFirstName"`
	StudentLastName   string            `gorm:"size:100" json:"studentLastName"`
	UsageAcknowledged bool              `gorm:"not null;default:false" json:"usageAcknowledged"`
	IssuedNew         bool              `gorm:"not null;default:false" json:"issuedNew"`
	IssuedUsed        bool              `gorm:"not null;default:false" json:"issuedUsed"`
	Valid             bool              `gorm:"not null;default:false" json:"valid"`

	Active       bool       `gorm:"not null;default:true;index" json:"active"`
	MatchNote    string     `gorm:"size:255" json:"matchNote,omitempty"`
	SupersededAt *time.Time `json:"supersededAt,omitempty"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (Contract) TableName() string { return ContractTable }

// ContractFields 返回合同上保存的表单字段
func (c Contract) ContractFields() ContractFields {
	return ContractFields{
		InventoryNumber:   c.InventoryNumber,
		StudentFirstName:  c.StudentFirstName,
		StudentLastName:   c.StudentLastName,
		UsageAcknowledged: c.UsageAcknowledged,
		IssuedNew:         c.IssuedNew,
		IssuedUsed:        c.IssuedUsed,
	}
}

// ContractFields 从 PDF 表单提取出的身份与勾选项
type ContractFields struct {
	InventoryNumber   string `json:"inventoryNumber"`
	StudentFirstName  string `json:"studentFirstName"`
	StudentLastName   string `json:"studentLastName"`
	UsageAcknowledged bool   `json:"usageAcknowledged"`
	IssuedNew         bool   `json:"issuedNew"`
	IssuedUsed        bool   `json:"issuedUsed"`
}

// Validate reports whether the usage terms were acknowledged and exactly one
// issuance condition (new or used) was ticked.
func (f ContractFields) Validate() (bool, []string) {
	var problems []string
	if !f.UsageAcknowledged {
		problems = append(problems, "usage terms not acknowledged")
	}
	switch {
	case f.IssuedNew && f.IssuedUsed:
		problems = append(problems, "both issuance conditions ticked")
	case !f.IssuedNew && !f.IssuedUsed:
		problems = append(problems, "no issuance condition ticked")
	}
	return len(problems) == 0, problems
}

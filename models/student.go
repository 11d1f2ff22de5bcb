// models/student.go
package models

import "time"

const StudentTable = "students"

// Guardian 两个监护人槽位共用
type Guardian struct {
	FirstName  string `gorm:"size:100" json:"firstName"`
	LastName   string `gorm:"size:100" json:"lastName"`
	Street     string `gorm:"size:200" json:"street"`
	PostalCode string `gorm:"size:10" json:"postalCode"`
	City       string `gorm:"size:100" json:"city"`
}

type Student struct {
	ID         string  `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID *string `gorm:"size:64;uniqueIndex" json:"externalId,omitempty"` // 学校系统的稳定编号（可选）
	FirstName  string  `gorm:"size:100;not null;index:idx_students_natural_key" json:"firstName"`
	LastName   string  `gorm:"size:100;not null;index:idx_students_natural_key" json:"lastName"`
	Class      string  `gorm:"size:20;index:idx_students_natural_key" json:"class"`
	BirthDate  string  `gorm:"size:20" json:"birthDate,omitempty"`
	Street     string  `gorm:"size:200" json:"street"`
	PostalCode string  `gorm:"size:10" json:"postalCode"`
	City       string  `gorm:"size:100" json:"city"`

	Guardian1 Guardian `gorm:"embedded;embeddedPrefix:guardian1_" json:"guardian1"`
	Guardian2 Guardian `gorm:"embedded;embeddedPrefix:guardian2_" json:"guardian2"`

	UserID              *string   `gorm:"type:uuid;index" json:"userId,omitempty"`
	ImportSeq           int64     `gorm:"not null;default:0;index" json:"importSeq"`
	CurrentAssignmentID *string   `gorm:"type:uuid" json:"currentAssignmentId,omitempty"`
	CreatedAt           time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func (Student) TableName() string { return StudentTable }

func (s Student) FullName() string { return s.FirstName + " " + s.LastName }

// db/repo_inventory.go
package db

import (
	"context"
	"fmt"

	"device_inventory_tool/models"

	"gorm.io/gorm"
)

// ImportInventory upserts devices and, when a row names a student, the student
// and the pairing between them. Each row is one transaction.
func (r *Repo) ImportInventory(ctx context.Context, recs []models.InventoryRecord) (ImportResult, error) {
	var res ImportResult
	settings, err := r.GetSettings(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}

	seen := map[string]int{}
	for _, rec := range recs {
		key := rec.Device.InventoryNumber
		if key == "" {
			res.add(RowOutcome{Row: rec.Device.Row, Outcome: OutcomeSkipped, Message: "missing ITNr"})
			continue
		}
		if first, dup := seen[key]; dup {
			res.add(RowOutcome{Row: rec.Device.Row, Key: key, Outcome: OutcomeError,
				Message: fmt.Sprintf("duplicate ITNr in file (first seen in row %d)", first)})
			continue
		}
		seen[key] = rec.Device.Row

		var created bool
		err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var (
				d   *models.Device
				err error
			)
			created, d, err = r.upsertDevice(tx, rec.Device, settings)
			if err != nil {
				return err
			}
			if rec.Student == nil {
				return nil
			}
			if rec.Student.FirstName == "" || rec.Student.LastName == "" {
				return validationf("student columns need first and last name")
			}
			_, s, err := r.upsertStudent(tx, *rec.Student)
			if err != nil {
				return err
			}
			return r.ensurePaired(tx, d, s)
		})
		res.add(deviceOutcome(rec.Device, created, err))
	}
	return res, nil
}

// ensurePaired 已是同一对则不变；否则按手动分配的规则建立
func (r *Repo) ensurePaired(tx *gorm.DB, d *models.Device, s *models.Student) error {
	if d.CurrentAssignmentID != nil && s.CurrentAssignmentID != nil && *d.CurrentAssignmentID == *s.CurrentAssignmentID {
		return nil
	}
	if d.CurrentAssignmentID != nil {
		return conflictf("device %s is assigned to another student", d.InventoryNumber)
	}
	if s.CurrentAssignmentID != nil {
		return conflictf("student %s already has another device", s.FullName())
	}
	if d.Status != models.DeviceAvailable {
		return conflictf("device %s is %s", d.InventoryNumber, d.Status)
	}
	_, err := r.pair(tx, d, s)
	return err
}

func (r *Repo) ExportInventory(ctx context.Context) ([]models.InventoryRow, error) {
	var devices []models.Device
	if err := r.owned(r.DB.WithContext(ctx), "user_id").Order("inventory_number ASC").Find(&devices).Error; err != nil {
		return nil, err
	}
	var students []models.Student
	if err := r.owned(r.DB.WithContext(ctx), "user_id").
		Where("current_assignment_id IS NOT NULL").
		Find(&students).Error; err != nil {
		return nil, err
	}
	byAssignment := make(map[string]*models.Student, len(students))
	for i := range students {
		byAssignment[*students[i].CurrentAssignmentID] = &students[i]
	}

	out := make([]models.InventoryRow, 0, len(devices))
	for _, d := range devices {
		row := models.InventoryRow{Device: d}
		if d.CurrentAssignmentID != nil {
			row.Student = byAssignment[*d.CurrentAssignmentID]
		}
		out = append(out, row)
	}
	return out, nil
}

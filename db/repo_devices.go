// db/repo_devices.go
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"device_inventory_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportDevices upserts devices by inventory number. Status is never touched
// by an import; every row runs in its own transaction and is reported on its own.
// New devices belong to the importing user; a device owned by someone else is
// a row error for non-admins.
func (r *Repo) ImportDevices(ctx context.Context, recs []models.DeviceRecord) (ImportResult, error) {
	var res ImportResult
	settings, err := r.GetSettings(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}

	seen := map[string]int{}
	for _, rec := range recs {
		key := rec.InventoryNumber
		if key == "" {
			res.add(RowOutcome{Row: rec.Row, Outcome: OutcomeSkipped, Message: "missing ITNr"})
			continue
		}
		if first, dup := seen[key]; dup {
			res.add(RowOutcome{Row: rec.Row, Key: key, Outcome: OutcomeError,
				Message: fmt.Sprintf("duplicate ITNr in file (first seen in row %d)", first)})
			continue
		}
		seen[key] = rec.Row

		var created bool
		err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			created, _, err = r.upsertDevice(tx, rec, settings)
			return err
		})
		res.add(deviceOutcome(rec, created, err))
	}
	return res, nil
}

func deviceOutcome(rec models.DeviceRecord, created bool, err error) RowOutcome {
	o := RowOutcome{Row: rec.Row, Key: rec.InventoryNumber}
	switch {
	case err != nil:
		o.Outcome, o.Message = OutcomeError, err.Error()
	case created:
		o.Outcome = OutcomeCreated
	default:
		o.Outcome = OutcomeUpdated
	}
	return o
}

// upsertDevice 锁定并更新已有设备，或新建（status=available）
func (r *Repo) upsertDevice(tx *gorm.DB, rec models.DeviceRecord, settings *models.GlobalSettings) (bool, *models.Device, error) {
	now := r.now()
	var d models.Device
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("inventory_number = ?", rec.InventoryNumber).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		d = models.Device{
			ID:              uuid.NewString(),
			InventoryNumber: rec.InventoryNumber,
			SerialNumber:    rec.SerialNumber,
			Model:           rec.Model,
			StorageSize:     rec.StorageSize,
			Stylus:          rec.Stylus,
			Case:            rec.Case,
			AcquisitionYear: rec.AcquisitionYear,
			Packaging:       rec.Packaging,
			LoanDate:        rec.LoanDate,
			Status:          models.DeviceAvailable,
			UserID:          r.ownerID(),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if settings != nil {
			if d.Model == "" {
				d.Model = settings.DefaultDeviceModel
			}
			if d.Stylus == "" {
				d.Stylus = settings.DefaultStylus
			}
			if d.Case == "" {
				d.Case = settings.DefaultCase
			}
		}
		if err := tx.Create(&d).Error; err != nil {
			return false, nil, err
		}
		return true, &d, nil
	}
	if err != nil {
		return false, nil, err
	}
	if err := r.checkOwner(d.UserID, "device", d.InventoryNumber); err != nil {
		return false, nil, err
	}

	// 空单元格不覆盖已有值
	upd := map[string]any{}
	set := func(col, v string) {
		if v != "" {
			upd[col] = v
		}
	}
	set("serial_number", rec.SerialNumber)
	set("model", rec.Model)
	set("storage_size", rec.StorageSize)
	set("stylus", rec.Stylus)
	set("case_name", rec.Case)
	set("acquisition_year", rec.AcquisitionYear)
	set("packaging", rec.Packaging)
	set("loan_date", rec.LoanDate)
	if len(upd) == 0 {
		return false, &d, nil
	}
	upd["updated_at"] = now
	if err := tx.Model(&models.Device{}).Where("id = ?", d.ID).Updates(upd).Error; err != nil {
		return false, nil, err
	}
	if err := tx.First(&d, "id = ?", d.ID).Error; err != nil {
		return false, nil, err
	}
	return false, &d, nil
}

func (r *Repo) FindDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := r.DB.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "device", id)
	}
	if err := r.checkOwner(d.UserID, "device", id); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetDeviceStatus changes a device status by hand. The assignment engine owns
// "assigned": leaving it requires dissolving the assignment, except that an
// override may mark a lent device defective or stolen. Leaving defective or
// stolen also requires an override.
func (r *Repo) SetDeviceStatus(ctx context.Context, id string, status models.DeviceStatus, override bool) (*models.Device, error) {
	if !status.Valid() {
		return nil, validationf("unknown device status %q", status)
	}
	var d models.Device
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&d, "id = ?", id).Error; err != nil {
			return notFound(err, "device", id)
		}
		if err := r.checkOwner(d.UserID, "device", id); err != nil {
			return err
		}
		if d.Status == status {
			return nil
		}
		var active int64
		if err := tx.Model(&models.Assignment{}).
			Where("device_id = ? AND active = ?", d.ID, true).
			Count(&active).Error; err != nil {
			return err
		}

		switch {
		case status == models.DeviceAssigned:
			if active == 0 {
				return conflictf("status %q is set by creating an assignment", status)
			}
			if !override {
				return conflictf("restoring %q on device %s requires override", status, d.InventoryNumber)
			}
		case active > 0:
			if status == models.DeviceAvailable {
				return conflictf("device %s has an active assignment; dissolve it first", d.InventoryNumber)
			}
			if !override {
				return conflictf("device %s has an active assignment; dissolve it first or use override", d.InventoryNumber)
			}
		case d.Status.Sticky() && !override:
			return conflictf("device %s is %s; changing it requires override", d.InventoryNumber, d.Status)
		}

		now := r.now()
		if err := tx.Model(&models.Device{}).Where("id = ?", d.ID).
			Updates(map[string]any{"status": status, "updated_at": now}).Error; err != nil {
			return err
		}
		d.Status = status
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func deviceViewQuery(db *gorm.DB) *gorm.DB {
	return db.
		Table(models.DeviceTable+" d").
		Select(`
			d.*,
			a.id          AS assignment_id,
			a.student_id  AS student_id,
			a.assigned_at AS assigned_at,
			s.first_name  AS student_first_name,
			s.last_name   AS student_last_name,
			s.class       AS student_class
		`).
		Joins("LEFT JOIN "+models.AssignmentTable+" a ON a.device_id = d.id AND a.active = ?", true).
		Joins("LEFT JOIN " + models.StudentTable + " s ON s.id = a.student_id")
}

// ListDevices 设备 + 当前借用人；status 为空表示全部
func (r *Repo) ListDevices(ctx context.Context, status models.DeviceStatus) ([]models.DeviceView, error) {
	q := r.owned(deviceViewQuery(r.DB.WithContext(ctx)), "d.user_id")
	if status != "" {
		q = q.Where("d.status = ?", status)
	}
	var rows []models.DeviceView
	if err := q.Order("d.inventory_number ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListAvailableDevices is the candidate pool of the assignment engine.
func (r *Repo) ListAvailableDevices(ctx context.Context) ([]models.Device, error) {
	return r.availableDevices(r.DB.WithContext(ctx), false)
}

func (r *Repo) availableDevices(tx *gorm.DB, lock bool) ([]models.Device, error) {
	q := r.owned(tx.Model(&models.Device{}), "user_id")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ds []models.Device
	err := q.Where("status = ? AND current_assignment_id IS NULL", models.DeviceAvailable).
		Order("inventory_number ASC").
		Find(&ds).Error
	return ds, err
}

type DeviceHistory struct {
	Device      models.Device           `json:"device"`
	Assignments []models.AssignmentView `json:"assignments"`
	Contracts   []models.Contract       `json:"contracts"`
}

func (r *Repo) DeviceHistory(ctx context.Context, id string) (*DeviceHistory, error) {
	d, err := r.FindDeviceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	h := &DeviceHistory{Device: *d}
	if err := assignmentViewQuery(r.DB.WithContext(ctx)).
		Where("a.device_id = ?", id).
		Order("a.assigned_at DESC").
		Scan(&h.Assignments).Error; err != nil {
		return nil, err
	}
	h.Contracts, err = r.contractsForAssignments(ctx, assignmentIDs(h.Assignments))
	if err != nil {
		return nil, err
	}
	return h, nil
}

func assignmentIDs(vs []models.AssignmentView) []string {
	ids := make([]string, 0, len(vs))
	for _, v := range vs {
		ids = append(ids, v.ID)
	}
	return ids
}

func normalizeKey(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

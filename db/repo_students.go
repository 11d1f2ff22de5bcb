// db/repo_students.go
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

// ImportStudents upserts students. A row with SchuelerID matches on it; a row
// without one matches on (first name, last name, class), and more than one
// stored match is reported as an error rather than merged. Natural keys only
// match the importing user's own students. Assignment state is never touched.
func (r *Repo) ImportStudents(ctx context.Context, recs []models.StudentRecord) ImportResult {
	var res ImportResult
	seen := map[string]int{}
	for _, rec := range recs {
		key := studentKey(rec)
		if rec.FirstName == "" || rec.LastName == "" {
			res.add(RowOutcome{Row: rec.Row, Key: key, Outcome: OutcomeSkipped, Message: "missing first or last name"})
			continue
		}
		if first, dup := seen[key]; dup {
			res.add(RowOutcome{Row: rec.Row, Key: key, Outcome: OutcomeError,
				Message: fmt.Sprintf("duplicate student in file (first seen in row %d)", first)})
			continue
		}
		seen[key] = rec.Row

		var created bool
		err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			created, _, err = r.upsertStudent(tx, rec)
			return err
		})
		o := RowOutcome{Row: rec.Row, Key: key, Outcome: OutcomeUpdated}
		switch {
		case err != nil:
			o.Outcome, o.Message = OutcomeError, err.Error()
		case created:
			o.Outcome = OutcomeCreated
		}
		res.add(o)
	}
	return res
}

func studentKey(rec models.StudentRecord) string {
	if rec.ExternalID != "" {
		return "id:" + strings.ToLower(rec.ExternalID)
	}
	return normalizeKey(rec.FirstName, rec.LastName, rec.Class)
}

// findStudentForRecord 先按 ExternalID（全局唯一），再按导入者名下的自然键（大小写不敏感）
func (r *Repo) findStudentForRecord(tx *gorm.DB, rec models.StudentRecord) (*models.Student, error) {
	lock := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	if rec.ExternalID != "" {
		var s models.Student
		err := lock.Where("external_id = ?", rec.ExternalID).First(&s).Error
		if err == nil {
			if err := r.checkOwner(s.UserID, "student", rec.ExternalID); err != nil {
				return nil, err
			}
			return &s, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("LOWER(first_name) = ? AND LOWER(last_name) = ? AND LOWER(class) = ?",
			strings.ToLower(rec.FirstName), strings.ToLower(rec.LastName), strings.ToLower(rec.Class))
	if owner := r.ownerID(); owner != nil {
		q = q.Where("user_id = ?", *owner)
	} else {
		q = q.Where("user_id IS NULL")
	}
	if rec.ExternalID != "" {
		// 只认领还没有编号的同名学生
		q = q.Where("external_id IS NULL")
	}
	var matches []models.Student
	if err := q.Limit(2).Find(&matches).Error; err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, conflictf("student %s %s (%s) matches several stored students; add SchuelerID",
			rec.FirstName, rec.LastName, rec.Class)
	}
}

func (r *Repo) upsertStudent(tx *gorm.DB, rec models.StudentRecord) (bool, *models.Student, error) {
	now := r.now()
	existing, err := r.findStudentForRecord(tx, rec)
	if err != nil {
		return false, nil, err
	}
	if existing == nil {
		var seq int64
		if err := tx.Model(&models.Student{}).
			Select("COALESCE(MAX(import_seq), 0)").
			Scan(&seq).Error; err != nil {
			return false, nil, err
		}
		s := models.Student{
			ID:         uuid.NewString(),
			FirstName:  rec.FirstName,
			LastName:   rec.LastName,
			Class:      rec.Class,
			BirthDate:  rec.BirthDate,
			Street:     rec.Street,
			PostalCode: rec.PostalCode,
			City:       rec.City,
			Guardian1:  rec.Guardian1,
			Guardian2:  rec.Guardian2,
			UserID:     r.ownerID(),
			ImportSeq:  seq + 1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if rec.ExternalID != "" {
			ext := rec.ExternalID
			s.ExternalID = &ext
		}
		if err := tx.Create(&s).Error; err != nil {
			return false, nil, err
		}
		return true, &s, nil
	}

	upd := map[string]any{}
	set := func(col, v string) {
		if v != "" {
			upd[col] = v
		}
	}
	set("external_id", rec.ExternalID)
	set("first_name", rec.FirstName)
	set("last_name", rec.LastName)
	set("class", rec.Class)
	set("birth_date", rec.BirthDate)
	set("street", rec.Street)
	set("postal_code", rec.PostalCode)
	set("city", rec.City)
	for prefix, g := range map[string]models.Guardian{"guardian1_": rec.Guardian1, "guardian2_": rec.Guardian2} {
		set(prefix+"first_name", g.FirstName)
		set(prefix+"last_name", g.LastName)
		set(prefix+"street", g.Street)
		set(prefix+"postal_code", g.PostalCode)
		set(prefix+"city", g.City)
	}
	if len(upd) > 0 {
		upd["updated_at"] = now
		if err := tx.Model(&models.Student{}).Where("id = ?", existing.ID).Updates(upd).Error; err != nil {
			return false, nil, err
		}
		if err := tx.First(existing, "id = ?", existing.ID).Error; err != nil {
			return false, nil, err
		}
	}
	return false, existing, nil
}

func (r *Repo) FindStudentByID(ctx context.Context, id string) (*models.Student, error) {
	var s models.Student
	if err := r.DB.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "student", id)
	}
	if err := r.checkOwner(s.UserID, "student", id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListStudents(ctx context.Context) ([]models.Student, error) {
	var out []models.Student
	err := r.owned(r.DB.WithContext(ctx), "user_id").
		Order("last_name ASC, first_name ASC, class ASC").
		Find(&out).Error
	return out, err
}

// ListUnassignedStudents is the student pool of the assignment engine, in import order.
func (r *Repo) ListUnassignedStudents(ctx context.Context) ([]models.Student, error) {
	return r.unassignedStudents(r.DB.WithContext(ctx), false)
}

func (r *Repo) unassignedStudents(tx *gorm.DB, lock bool) ([]models.Student, error) {
	q := r.owned(tx.Model(&models.Student{}), "user_id")
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ss []models.Student
	err := q.Where("current_assignment_id IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM "+models.AssignmentTable+" a WHERE a.student_id = "+models.StudentTable+".id AND a.active = ?)", true).
		Order("import_seq ASC, id ASC").
		Find(&ss).Error
	return ss, err
}

type StudentDetail struct {
	Student     models.Student          `json:"student"`
	Assignments []models.AssignmentView `json:"assignments"`
	Contracts   []models.Contract       `json:"contracts"`
}

func (r *Repo) StudentDetail(ctx context.Context, id string) (*StudentDetail, error) {
	s, err := r.FindStudentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &StudentDetail{Student: *s}
	if err := assignmentViewQuery(r.DB.WithContext(ctx)).
		Where("a.student_id = ?", id).
		Order("a.assigned_at DESC").
		Scan(&d.Assignments).Error; err != nil {
		return nil, err
	}
	d.Contracts, err = r.contractsForAssignments(ctx, assignmentIDs(d.Assignments))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteCounts 级联删除（或预览）的数量
type DeleteCounts struct {
	Students    int64 `json:"students"`
	Assignments int64 `json:"assignments"`
	Contracts   int64 `json:"contracts"`
	// ReleasedDevices 因删除 active 分配而释放的设备
	ReleasedDevices int64 `json:"releasedDevices"`
}

// PreviewStudentDelete returns what DeleteStudent would remove.
func (r *Repo) PreviewStudentDelete(ctx context.Context, id string) (*DeleteCounts, error) {
	if _, err := r.FindStudentByID(ctx, id); err != nil {
		return nil, err
	}
	return countCascade(r.DB.WithContext(ctx), []string{id})
}

func countCascade(tx *gorm.DB, studentIDs []string) (*DeleteCounts, error) {
	c := &DeleteCounts{Students: int64(len(studentIDs))}
	if len(studentIDs) == 0 {
		return c, nil
	}
	if err := tx.Model(&models.Assignment{}).
		Where("student_id IN ?", studentIDs).
		Count(&c.Assignments).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Assignment{}).
		Where("student_id IN ? AND active = ?", studentIDs, true).
		Count(&c.ReleasedDevices).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Contract{}).
		Where("assignment_id IN (?)", tx.Model(&models.Assignment{}).Select("id").Where("student_id IN ?", studentIDs)).
		Count(&c.Contracts).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteStudent removes the student, their assignment history and every
// contract linked to it in one transaction. A device held by an active
// assignment is released.
func (r *Repo) DeleteStudent(ctx context.Context, id string) (*DeleteCounts, error) {
	var out *DeleteCounts
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s models.Student
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", id).Error; err != nil {
			return notFound(err, "student", id)
		}
		if err := r.checkOwner(s.UserID, "student", id); err != nil {
			return err
		}
		var err error
		out, err = r.deleteStudentsCascade(tx, []string{id})
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deleteStudentsCascade 顺序：释放设备 → 删合同 → 删分配 → 删学生
func (r *Repo) deleteStudentsCascade(tx *gorm.DB, studentIDs []string) (*DeleteCounts, error) {
	c := &DeleteCounts{}
	if len(studentIDs) == 0 {
		return c, nil
	}

	var active []models.Assignment
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id IN ? AND active = ?", studentIDs, true).
		Find(&active).Error; err != nil {
		return nil, err
	}
	for _, a := range active {
		if err := r.releaseDevice(tx, a.DeviceID, a.ID); err != nil {
			return nil, err
		}
	}
	c.ReleasedDevices = int64(len(active))

	sub := tx.Model(&models.Assignment{}).Select("id").Where("student_id IN ?", studentIDs)
	res := tx.Where("assignment_id IN (?)", sub).Delete(&models.Contract{})
	if res.Error != nil {
		return nil, res.Error
	}
	c.Contracts = res.RowsAffected

	res = tx.Where("student_id IN ?", studentIDs).Delete(&models.Assignment{})
	if res.Error != nil {
		return nil, res.Error
	}
	c.Assignments = res.RowsAffected

	res = tx.Where("id IN ?", studentIDs).Delete(&models.Student{})
	if res.Error != nil {
		return nil, res.Error
	}
	c.Students = res.RowsAffected
	return c, nil
}

// releaseDevice 清除设备反向引用；assigned → available，defective/stolen 保持
func (r *Repo) releaseDevice(tx *gorm.DB, deviceID, assignmentID string) error {
	now := r.now()
	if err := tx.Model(&models.Device{}).
		Where("id = ? AND status = ?", deviceID, models.DeviceAssigned).
		Updates(map[string]any{"status": models.DeviceAvailable, "updated_at": now}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Device{}).
		Where("id = ? AND current_assignment_id = ?", deviceID, assignmentID).
		Updates(map[string]any{"current_assignment_id": nil, "updated_at": now}).Error
}

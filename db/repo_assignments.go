// db/repo_assignments.go
package db

import (
	"context"
	"strings"

	"device_inventory_tool/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Pair struct {
	AssignmentID    string `json:"assignmentId"`
	DeviceID        string `json:"deviceId"`
	InventoryNumber string `json:"inventoryNumber"`
	StudentID       string `json:"studentId"`
	StudentName     string `json:"studentName"`
}

type AutoAssignResult struct {
	Matched           int    `json:"matched"`
	RemainingDevices  int    `json:"remainingDevices"`
	RemainingStudents int    `json:"remainingStudents"`
	Pairs             []Pair `json:"pairs"`
}

// planPairs 按设备顺序逐个取同一归属账号下最早导入的学生
func planPairs(devices []models.Device, students []models.Student) [][2]int {
	queue := map[string][]int{}
	for i, s := range students {
		k := ownerKey(s.UserID)
		queue[k] = append(queue[k], i)
	}
	var out [][2]int
	for i, d := range devices {
		k := ownerKey(d.UserID)
		if q := queue[k]; len(q) > 0 {
			out = append(out, [2]int{i, q[0]})
			queue[k] = q[1:]
		}
	}
	return out
}

// AutoAssign pairs available devices (inventory number ascending) with
// unassigned students (import order) 1:1 until one pool runs out. Devices and
// students are only paired within the same owning user. The run is a single
// transaction; losing a race on any row aborts it with ErrConflict.
func (r *Repo) AutoAssign(ctx context.Context) (*AutoAssignResult, error) {
	var out AutoAssignResult
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		devices, err := r.availableDevices(tx, true)
		if err != nil {
			return err
		}
		students, err := r.unassignedStudents(tx, true)
		if err != nil {
			return err
		}

		plan := planPairs(devices, students)
		n := len(plan)
		out = AutoAssignResult{
			Matched:           n,
			RemainingDevices:  len(devices) - n,
			RemainingStudents: len(students) - n,
			Pairs:             make([]Pair, 0, n),
		}
		for _, p := range plan {
			d, s := &devices[p[0]], &students[p[1]]
			a, err := r.pair(tx, d, s)
			if err != nil {
				return err
			}
			out.Pairs = append(out.Pairs, Pair{
				AssignmentID:    a.ID,
				DeviceID:        d.ID,
				InventoryNumber: d.InventoryNumber,
				StudentID:       s.ID,
				StudentName:     s.FullName(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type AutoAssignPreview struct {
	Devices  []models.Device  `json:"devices"`
	Students []models.Student `json:"students"`
	Matched  int              `json:"matched"`
}

// PreviewAutoAssign 两个候选池（按配对顺序）以及下一次运行会建立的配对数
func (r *Repo) PreviewAutoAssign(ctx context.Context) (*AutoAssignPreview, error) {
	devices, err := r.ListAvailableDevices(ctx)
	if err != nil {
		return nil, err
	}
	students, err := r.ListUnassignedStudents(ctx)
	if err != nil {
		return nil, err
	}
	return &AutoAssignPreview{
		Devices:  devices,
		Students: students,
		Matched:  len(planPairs(devices, students)),
	}, nil
}

// pair 条件更新设备与学生，再写入 active 分配；分配归属于设备的账号
func (r *Repo) pair(tx *gorm.DB, d *models.Device, s *models.Student) (*models.Assignment, error) {
	if !sameOwner(d.UserID, s.UserID) {
		return nil, conflictf("device %s and student %s belong to different users", d.InventoryNumber, s.FullName())
	}
	deviceID, studentID := d.ID, s.ID
	now := r.now()
	a := models.Assignment{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		StudentID:  studentID,
		UserID:     d.UserID,
		AssignedAt: now,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	res := tx.Model(&models.Device{}).
		Where("id = ? AND status = ? AND current_assignment_id IS NULL", deviceID, models.DeviceAvailable).
		Updates(map[string]any{
			"status":                models.DeviceAssigned,
			"current_assignment_id": a.ID,
			"updated_at":            now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, conflictf("device %s is no longer available", deviceID)
	}

	res = tx.Model(&models.Student{}).
		Where("id = ? AND current_assignment_id IS NULL", studentID).
		Updates(map[string]any{"current_assignment_id": a.ID, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, conflictf("student %s already has an active assignment", studentID)
	}

	// 部分唯一索引兜底
	if err := tx.Create(&a).Error; err != nil {
		return nil, conflictf("create assignment: %v", err)
	}
	return &a, nil
}

// CreateAssignment pairs one device with one student by hand.
func (r *Repo) CreateAssignment(ctx context.Context, deviceID, studentID string) (*models.Assignment, error) {
	if deviceID == "" || studentID == "" {
		return nil, validationf("deviceId and studentId are required")
	}
	var a *models.Assignment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d models.Device
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, "id = ?", deviceID).Error; err != nil {
			return notFound(err, "device", deviceID)
		}
		var s models.Student
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, "id = ?", studentID).Error; err != nil {
			return notFound(err, "student", studentID)
		}
		if err := r.checkOwner(d.UserID, "device", deviceID); err != nil {
			return err
		}
		if err := r.checkOwner(s.UserID, "student", studentID); err != nil {
			return err
		}
		if d.Status != models.DeviceAvailable || d.CurrentAssignmentID != nil {
			return conflictf("device %s is %s", d.InventoryNumber, d.Status)
		}
		if s.CurrentAssignmentID != nil {
			return conflictf("student %s already has an active assignment", s.FullName())
		}
		var err error
		a, err = r.pair(tx, &d, &s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *Repo) FindAssignmentByID(ctx context.Context, id string) (*models.Assignment, error) {
	var a models.Assignment
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "assignment", id)
	}
	if err := r.checkOwner(a.UserID, "assignment", id); err != nil {
		return nil, err
	}
	return &a, nil
}

// Dissolve ends an active assignment. The device goes back to available
// unless it was marked defective or stolen meanwhile.
func (r *Repo) Dissolve(ctx context.Context, id string) (*models.Assignment, error) {
	var a models.Assignment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.dissolveTx(tx, id, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) dissolveTx(tx *gorm.DB, id string, a *models.Assignment) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(a, "id = ?", id).Error; err != nil {
		return notFound(err, "assignment", id)
	}
	if err := r.checkOwner(a.UserID, "assignment", id); err != nil {
		return err
	}
	if !a.Active {
		return invalidStatef("assignment %s is already dissolved", id)
	}
	now := r.now()
	res := tx.Model(&models.Assignment{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{"active": false, "dissolved_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return invalidStatef("assignment %s is already dissolved", id)
	}
	if err := r.releaseDevice(tx, a.DeviceID, a.ID); err != nil {
		return err
	}
	if err := tx.Model(&models.Student{}).
		Where("id = ? AND current_assignment_id = ?", a.StudentID, a.ID).
		Updates(map[string]any{"current_assignment_id": nil, "updated_at": now}).Error; err != nil {
		return err
	}
	a.Active = false
	a.DissolvedAt = &now
	a.UpdatedAt = now
	return nil
}

// BatchDissolve dissolves each id in its own transaction; failures do not stop the batch.
func (r *Repo) BatchDissolve(ctx context.Context, ids []string) BatchResult {
	res := BatchResult{Items: make([]ItemOutcome, 0, len(ids))}
	for _, id := range ids {
		_, err := r.Dissolve(ctx, id)
		res.record(id, err)
	}
	return res
}

const (
	ScopeAll       = "all"
	ScopeActive    = "active"
	ScopeDissolved = "dissolved"
)

func ParseScope(s, def string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case ScopeAll:
		return ScopeAll, nil
	case ScopeActive:
		return ScopeActive, nil
	case ScopeDissolved:
		return ScopeDissolved, nil
	}
	return "", validationf("unknown scope %q", s)
}

func applyScope(q *gorm.DB, scope string) *gorm.DB {
	switch scope {
	case ScopeActive:
		return q.Where("a.active = ?", true)
	case ScopeDissolved:
		return q.Where("a.active = ?", false)
	}
	return q
}

func assignmentViewQuery(db *gorm.DB) *gorm.DB {
	return db.
		Table(models.AssignmentTable+" a").
		Select(`
			a.*,
			d.inventory_number AS inventory_number,
			s.first_name       AS student_first_name,
			s.last_name        AS student_last_name,
			s.class            AS student_class,
			COALESCE(c.filename, '') AS contract_filename
		`).
		Joins("JOIN " + models.DeviceTable + " d ON d.id = a.device_id").
		Joins("JOIN " + models.StudentTable + " s ON s.id = a.student_id").
		Joins("LEFT JOIN " + models.ContractTable + " c ON c.id = a.contract_id")
}

// ListAssignments 默认只列 active
func (r *Repo) ListAssignments(ctx context.Context, scope string) ([]models.AssignmentView, error) {
	if scope == "" {
		scope = ScopeActive
	}
	var rows []models.AssignmentView
	q := r.owned(assignmentViewQuery(r.DB.WithContext(ctx)), "a.user_id")
	err := applyScope(q, scope).
		Order("a.assigned_at DESC, a.id ASC").
		Scan(&rows).Error
	return rows, err
}

type AssignmentFilter struct {
	FirstName       string
	LastName        string
	Class           string
	InventoryNumber string
	Scope           string
}

// FilterAssignments matches every non-empty criterion as a case-insensitive
// substring (AND); "%" and "_" match literally. An empty filter returns all
// assignments.
func (r *Repo) FilterAssignments(ctx context.Context, f AssignmentFilter) ([]models.AssignmentView, error) {
	q := r.owned(assignmentViewQuery(r.DB.WithContext(ctx)), "a.user_id")
	like := func(col, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		q = q.Where("LOWER("+col+`) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(v))+"%")
	}
	like("s.first_name", f.FirstName)
	like("s.last_name", f.LastName)
	like("s.class", f.Class)
	like("d.inventory_number", f.InventoryNumber)

	scope := f.Scope
	if scope == "" {
		scope = ScopeAll
	}
	var rows []models.AssignmentView
	err := applyScope(q, scope).
		Order("a.assigned_at DESC, a.id ASC").
		Scan(&rows).Error
	return rows, err
}

// db/repo_retention.go
package db

import (
	"context"
	"time"

	"device_inventory_tool/models"

	"gorm.io/gorm"
)

// PurgeCounts 不含释放的设备：持有 active 分配的学生不会被清理
type PurgeCounts struct {
	Threshold   time.Time `json:"threshold"`
	Students    int64     `json:"students"`
	Assignments int64     `json:"assignments"`
	Contracts   int64     `json:"contracts"`
}

type purgePlan struct {
	StudentIDs  []string
	Contracts   []string
	Assignments int64
}

// planPurge 选出早于阈值的学生（无 active 分配）与合同（不属于 active 分配）
func planPurge(tx *gorm.DB, threshold time.Time) (*purgePlan, error) {
	p := &purgePlan{}
	if err := tx.Model(&models.Student{}).
		Where("created_at < ?", threshold).
		Where("current_assignment_id IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM "+models.AssignmentTable+" a WHERE a.student_id = "+models.StudentTable+".id AND a.active = ?)", true).
		Order("id").
		Pluck("id", &p.StudentIDs).Error; err != nil {
		return nil, err
	}

	var linked []string
	if len(p.StudentIDs) > 0 {
		if err := tx.Model(&models.Assignment{}).
			Where("student_id IN ?", p.StudentIDs).
			Count(&p.Assignments).Error; err != nil {
			return nil, err
		}
		if err := tx.Table(models.ContractTable+" c").
			Joins("JOIN "+models.AssignmentTable+" a ON a.id = c.assignment_id").
			Where("a.student_id IN ?", p.StudentIDs).
			Pluck("c.id", &linked).Error; err != nil {
			return nil, err
		}
	}

	var aged []string
	if err := tx.Table(models.ContractTable+" c").
		Joins("LEFT JOIN "+models.AssignmentTable+" a ON a.id = c.assignment_id").
		Where("c.created_at < ?", threshold).
		Where("(a.id IS NULL OR a.active = ?)", false).
		Pluck("c.id", &aged).Error; err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, id := range append(linked, aged...) {
		if !seen[id] {
			seen[id] = true
			p.Contracts = append(p.Contracts, id)
		}
	}
	return p, nil
}

// PreviewPurge reports what PurgeOlderThan would delete.
func (r *Repo) PreviewPurge(ctx context.Context, threshold time.Time) (*PurgeCounts, error) {
	p, err := planPurge(r.DB.WithContext(ctx), threshold)
	if err != nil {
		return nil, err
	}
	return &PurgeCounts{
		Threshold:   threshold,
		Students:    int64(len(p.StudentIDs)),
		Assignments: p.Assignments,
		Contracts:   int64(len(p.Contracts)),
	}, nil
}

// PurgeOlderThan deletes students and contracts created before threshold.
// Students holding an active assignment and contracts linked to one are kept
// whatever their age. Re-running with the same threshold deletes nothing new.
func (r *Repo) PurgeOlderThan(ctx context.Context, threshold time.Time) (*PurgeCounts, error) {
	out := &PurgeCounts{Threshold: threshold}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := planPurge(tx, threshold)
		if err != nil {
			return err
		}

		if len(p.Contracts) > 0 {
			if err := clearContractRefs(tx, p.Contracts, r.now()); err != nil {
				return err
			}
			res := tx.Where("id IN ?", p.Contracts).Delete(&models.Contract{})
			if res.Error != nil {
				return res.Error
			}
			out.Contracts = res.RowsAffected
		}

		c, err := r.deleteStudentsCascade(tx, p.StudentIDs)
		if err != nil {
			return err
		}
		out.Students = c.Students
		out.Assignments = c.Assignments
		out.Contracts += c.Contracts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ThresholdFor 把“早于 N 天”换算成时间点
func (r *Repo) ThresholdFor(olderThanDays int) (time.Time, error) {
	if olderThanDays < 1 {
		return time.Time{}, validationf("olderThanDays must be at least 1")
	}
	return r.now().AddDate(0, 0, -olderThanDays), nil
}

// db/repo_contracts.go
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"device_inventory_tool/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContractUpload 一个上传的 PDF 及其提取结果
type ContractUpload struct {
	Filename string
	Data     []byte
	// Raw 表单原始字段，原样保存
	Raw    map[string]any
	Fields models.ContractFields
	// ExtractErr 非空表示字段提取失败，合同以未分配状态保存
	ExtractErr string
}

type IngestOutcome struct {
	Filename     string   `json:"filename"`
	ContractID   string   `json:"contractId,omitempty"`
	AssignmentID *string  `json:"assignmentId,omitempty"`
	Linked       bool     `json:"linked"`
	Valid        bool     `json:"valid"`
	Problems     []string `json:"problems,omitempty"`
	MatchNote    string   `json:"matchNote,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type ContractBatchResult struct {
	Linked     int             `json:"linked"`
	Unassigned int             `json:"unassigned"`
	Failed     int             `json:"failed"`
	Items      []IngestOutcome `json:"items"`
}

func (r *Repo) newContract(up ContractUpload) *models.Contract {
	now := r.now()
	ok, _ := up.Fields.Validate()
	c := &models.Contract{
		ID:                uuid.NewString(),
		Filename:          up.Filename,
		Data:              up.Data,
		Size:              int64(len(up.Data)),
		Fields:            datatypes.JSONMap(up.Raw),
		InventoryNumber:   strings.TrimSpace(up.Fields.InventoryNumber),
		StudentFirstName:  strings.TrimSpace(up.Fields.StudentFirstName),
		StudentLastName:   strings.TrimSpace(up.Fields.StudentLastName),
		UsageAcknowledged: up.Fields.UsageAcknowledged,
		IssuedNew:         up.Fields.IssuedNew,
		IssuedUsed:        up.Fields.IssuedUsed,
		Valid:             ok,
		Active:            true,
		UserID:            r.ownerID(),
		UploadedAt:        now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if c.Fields == nil {
		c.Fields = datatypes.JSONMap{}
	}
	return c
}

// matchAssignments 设备号精确匹配，姓名去空白、大小写不敏感；只在上传者可见的分配中找
func (r *Repo) matchAssignments(tx *gorm.DB, f models.ContractFields) ([]string, error) {
	var ids []string
	err := r.owned(tx.Table(models.AssignmentTable+" a"), "a.user_id").
		Select("a.id").
		Joins("JOIN "+models.DeviceTable+" d ON d.id = a.device_id").
		Joins("JOIN "+models.StudentTable+" s ON s.id = a.student_id").
		Where("a.active = ?", true).
		Where("d.inventory_number = ?", strings.TrimSpace(f.InventoryNumber)).
		Where("LOWER(TRIM(s.first_name)) = ? AND LOWER(TRIM(s.last_name)) = ?",
			strings.ToLower(strings.TrimSpace(f.StudentFirstName)),
			strings.ToLower(strings.TrimSpace(f.StudentLastName))).
		Order("a.id").
		Pluck("a.id", &ids).Error
	return ids, err
}

// IngestContract stores an uploaded contract and links it when exactly one
// active assignment matches its inventory number and student name. Otherwise
// the contract stays unassigned with a note; it never guesses.
func (r *Repo) IngestContract(ctx context.Context, up ContractUpload) (*IngestOutcome, error) {
	out := &IngestOutcome{Filename: up.Filename}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c := r.newContract(up)

		var candidates []string
		switch {
		case up.ExtractErr != "":
			c.MatchNote = "field extraction failed: " + up.ExtractErr
		case strings.TrimSpace(up.Fields.InventoryNumber) == "" ||
			strings.TrimSpace(up.Fields.StudentFirstName) == "" ||
			strings.TrimSpace(up.Fields.StudentLastName) == "":
			c.MatchNote = "missing ITNr or student name"
		default:
			var err error
			if candidates, err = r.matchAssignments(tx, up.Fields); err != nil {
				return err
			}
			switch len(candidates) {
			case 0:
				c.MatchNote = "no active assignment matches"
			case 1:
			default:
				c.MatchNote = fmt.Sprintf("ambiguous: %d assignments match", len(candidates))
			}
		}

		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if len(candidates) == 1 && c.MatchNote == "" {
			var a models.Assignment
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", candidates[0]).Error; err != nil {
				return notFound(err, "assignment", candidates[0])
			}
			if err := r.linkContract(tx, c, &a); err != nil {
				return err
			}
		}
		fillOutcome(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func fillOutcome(out *IngestOutcome, c *models.Contract) {
	out.ContractID = c.ID
	out.AssignmentID = c.AssignmentID
	out.Linked = c.AssignmentID != nil
	out.MatchNote = c.MatchNote
	out.Valid, out.Problems = c.ContractFields().Validate()
}

// linkContract 关联到分配：旧合同失效，重新校验，重置 warning_dismissed；
// 合同随分配归属同一账号
func (r *Repo) linkContract(tx *gorm.DB, c *models.Contract, a *models.Assignment) error {
	now := r.now()
	if err := r.supersedePrior(tx, a.ID, c.ID); err != nil {
		return err
	}
	if err := tx.Model(&models.Contract{}).Where("id = ?", c.ID).
		Updates(map[string]any{
			"assignment_id": a.ID,
			"user_id":       a.UserID,
			"active":        true,
			"match_note":    "",
			"superseded_at": nil,
			"updated_at":    now,
		}).Error; err != nil {
		return err
	}
	valid, _ := c.ContractFields().Validate()
	if err := tx.Model(&models.Assignment{}).Where("id = ?", a.ID).
		Updates(map[string]any{
			"contract_id":       c.ID,
			"contract_warning":  !valid,
			"warning_dismissed": false,
			"updated_at":        now,
		}).Error; err != nil {
		return err
	}
	aid := a.ID
	c.AssignmentID = &aid
	c.UserID = a.UserID
	c.Active = true
	c.MatchNote = ""
	c.Valid = valid
	return nil
}

func (r *Repo) supersedePrior(tx *gorm.DB, assignmentID, exceptID string) error {
	now := r.now()
	return tx.Model(&models.Contract{}).
		Where("assignment_id = ? AND active = ? AND id <> ?", assignmentID, true, exceptID).
		Updates(map[string]any{"active": false, "superseded_at": now, "updated_at": now}).Error
}

// IngestMany ingests each upload on its own; one failure never aborts the rest.
func (r *Repo) IngestMany(ctx context.Context, ups []ContractUpload) ContractBatchResult {
	res := ContractBatchResult{Items: make([]IngestOutcome, 0, len(ups))}
	for _, up := range ups {
		out, err := r.IngestContract(ctx, up)
		switch {
		case err != nil:
			res.Failed++
			res.Items = append(res.Items, IngestOutcome{Filename: up.Filename, Kind: ErrorKind(err), Error: err.Error()})
			continue
		case out.Linked:
			res.Linked++
		default:
			res.Unassigned++
		}
		res.Items = append(res.Items, *out)
	}
	return res
}

// ManualAssignContract links an unassigned contract to an active assignment,
// bypassing identity matching. Validation still runs.
func (r *Repo) ManualAssignContract(ctx context.Context, contractID, assignmentID string) (*IngestOutcome, error) {
	var out IngestOutcome
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Contract
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", contractID).Error; err != nil {
			return notFound(err, "contract", contractID)
		}
		if err := r.checkOwner(c.UserID, "contract", contractID); err != nil {
			return err
		}
		if c.AssignmentID != nil {
			return invalidStatef("contract %s is already linked to assignment %s", c.ID, *c.AssignmentID)
		}
		var a models.Assignment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", assignmentID).Error; err != nil {
			return notFound(err, "assignment", assignmentID)
		}
		if err := r.checkOwner(a.UserID, "assignment", assignmentID); err != nil {
			return err
		}
		if !a.Active {
			return invalidStatef("assignment %s is dissolved", a.ID)
		}
		if err := r.linkContract(tx, &c, &a); err != nil {
			return err
		}
		out.Filename = c.Filename
		fillOutcome(&out, &c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplaceContract uploads a contract straight onto an active assignment,
// regardless of the identity fields on the form.
func (r *Repo) ReplaceContract(ctx context.Context, assignmentID string, up ContractUpload) (*IngestOutcome, error) {
	out := &IngestOutcome{Filename: up.Filename}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Assignment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", assignmentID).Error; err != nil {
			return notFound(err, "assignment", assignmentID)
		}
		if err := r.checkOwner(a.UserID, "assignment", assignmentID); err != nil {
			return err
		}
		if !a.Active {
			return invalidStatef("assignment %s is dissolved", a.ID)
		}
		c := r.newContract(up)
		if up.ExtractErr != "" {
			c.MatchNote = "field extraction failed: " + up.ExtractErr
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if err := r.linkContract(tx, c, &a); err != nil {
			return err
		}
		fillOutcome(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DismissWarning acknowledges a contract warning without re-validating.
func (r *Repo) DismissWarning(ctx context.Context, assignmentID string) (*models.Assignment, error) {
	var a models.Assignment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, "id = ?", assignmentID).Error; err != nil {
			return notFound(err, "assignment", assignmentID)
		}
		if err := r.checkOwner(a.UserID, "assignment", assignmentID); err != nil {
			return err
		}
		if !a.ContractWarning {
			return invalidStatef("assignment %s has no contract warning", a.ID)
		}
		if a.WarningDismissed {
			return nil
		}
		now := r.now()
		if err := tx.Model(&models.Assignment{}).Where("id = ?", a.ID).
			Updates(map[string]any{"warning_dismissed": true, "updated_at": now}).Error; err != nil {
			return err
		}
		a.WarningDismissed = true
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListUnassignedContracts 待人工关联的合同（不含 PDF 内容）
func (r *Repo) ListUnassignedContracts(ctx context.Context) ([]models.Contract, error) {
	var out []models.Contract
	err := r.owned(r.DB.WithContext(ctx), "user_id").
		Omit("data").
		Where("assignment_id IS NULL").
		Order("uploaded_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

func (r *Repo) GetContract(ctx context.Context, id string) (*models.Contract, error) {
	var c models.Contract
	if err := r.DB.WithContext(ctx).Omit("data").First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "contract", id)
	}
	if err := r.checkOwner(c.UserID, "contract", id); err != nil {
		return nil, err
	}
	return &c, nil
}

// ContractData returns the stored PDF with its metadata.
func (r *Repo) ContractData(ctx context.Context, id string) (*models.Contract, error) {
	var c models.Contract
	if err := r.DB.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "contract", id)
	}
	if err := r.checkOwner(c.UserID, "contract", id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) contractsForAssignments(ctx context.Context, ids []string) ([]models.Contract, error) {
	out := []models.Contract{}
	if len(ids) == 0 {
		return out, nil
	}
	err := r.DB.WithContext(ctx).
		Omit("data").
		Where("assignment_id IN ?", ids).
		Order("uploaded_at DESC, id ASC").
		Find(&out).Error
	return out, err
}

// DeleteContract removes a contract. An assignment pointing at it loses its
// contract reference and warning flags.
func (r *Repo) DeleteContract(ctx context.Context, id string) (*models.Contract, error) {
	var c models.Contract
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Omit("data").First(&c, "id = ?", id).Error; err != nil {
			return notFound(err, "contract", id)
		}
		if err := r.checkOwner(c.UserID, "contract", id); err != nil {
			return err
		}
		if err := clearContractRefs(tx, []string{id}, r.now()); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Contract{}).Error
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func clearContractRefs(tx *gorm.DB, contractIDs []string, now time.Time) error {
	if len(contractIDs) == 0 {
		return nil
	}
	return tx.Model(&models.Assignment{}).
		Where("contract_id IN ?", contractIDs).
		Updates(map[string]any{
			"contract_id":       nil,
			"contract_warning":  false,
			"warning_dismissed": false,
			"updated_at":        now,
		}).Error
}

package controllers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/pdfform"
	"device_inventory_tool/sheet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const autoAssignLock = "auto-assign"

type AssignmentController struct{ *Srv }

func NewAssignmentController(s *Srv) *AssignmentController { return &AssignmentController{Srv: s} }

// GET /api/assignments?scope=active|dissolved|all
func (ac *AssignmentController) ListAssignments(c *gin.Context) {
	scope, err := db.ParseScope(c.Query("scope"), db.ScopeActive)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	rows, err := ac.repo(c).ListAssignments(c.Request.Context(), scope)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"assignments": rows})
}

// GET /api/assignments/filtered?firstName=&lastName=&class=&deviceId=&scope=
func (ac *AssignmentController) FilterAssignments(c *gin.Context) {
	var in struct {
		FirstName string `form:"firstName"`
		LastName  string `form:"lastName"`
		Class     string `form:"class"`
		DeviceID  string `form:"deviceId"`
		Scope     string `form:"scope"`
	}
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	scope, err := db.ParseScope(in.Scope, db.ScopeAll)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	rows, err := ac.repo(c).FilterAssignments(c.Request.Context(), db.AssignmentFilter{
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Class:           in.Class,
		InventoryNumber: in.DeviceID,
		Scope:           scope,
	})
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"assignments": rows})
}

// POST /api/assignments {deviceId, studentId}
func (ac *AssignmentController) CreateAssignment(c *gin.Context) {
	var in struct {
		DeviceID  string `json:"deviceId" binding:"required"`
		StudentID string `json:"studentId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	a, err := ac.repo(c).CreateAssignment(c.Request.Context(), in.DeviceID, in.StudentID)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// POST /api/assignments/auto-assign
func (ac *AssignmentController) AutoAssign(c *gin.Context) {
	ctx := c.Request.Context()
	release, ok, err := ac.Locks.TryAcquire(ctx, autoAssignLock, time.Minute)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, app.H{"error": "auto-assign is already running", "kind": "conflict"})
		return
	}
	defer func() {
		if err := release(ctx); err != nil {
			ac.Log.Warn("release auto-assign lock", zap.Error(err))
		}
	}()

	res, err := ac.repo(c).AutoAssign(ctx)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	ac.Log.Info("auto-assign",
		zap.Int("matched", res.Matched),
		zap.Int("remainingDevices", res.RemainingDevices),
		zap.Int("remainingStudents", res.RemainingStudents),
	)
	c.JSON(http.StatusOK, res)
}

// GET /api/assignments/auto-assign/preview 两个候选池，按配对顺序
func (ac *AssignmentController) AutoAssignPreview(c *gin.Context) {
	p, err := ac.repo(c).PreviewAutoAssign(c.Request.Context())
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DELETE /api/assignments/:id
func (ac *AssignmentController) Dissolve(c *gin.Context) {
	a, err := ac.repo(c).Dissolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// POST /api/assignments/batch-dissolve {ids}
func (ac *AssignmentController) BatchDissolve(c *gin.Context) {
	var in struct {
		IDs []string `json:"ids" binding:"required,min=1,dive,required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, ac.repo(c).BatchDissolve(c.Request.Context(), in.IDs))
}

// POST /api/assignments/:id/dismiss-warning
func (ac *AssignmentController) DismissWarning(c *gin.Context) {
	a, err := ac.repo(c).DismissWarning(c.Request.Context(), c.Param("id"))
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// POST /api/assignments/:id/upload-contract (multipart file, optional fields)
func (ac *AssignmentController) UploadContract(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return
	}
	if err := pdfform.CheckExtension(fh.Filename); err != nil {
		ac.respondErr(c, err)
		return
	}
	data, err := ac.readUpload(fh)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	up := ac.contractUpload(c.Request.Context(), fh.Filename, data, c.PostForm("fields"))
	out, err := ac.repo(c).ReplaceContract(c.Request.Context(), c.Param("id"), up)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// GET /api/assignments/export?scope=
func (ac *AssignmentController) Export(c *gin.Context) {
	scope, err := db.ParseScope(c.Query("scope"), db.ScopeAll)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	rows, err := ac.repo(c).ListAssignments(c.Request.Context(), scope)
	if err != nil {
		ac.respondErr(c, err)
		return
	}
	name := fmt.Sprintf("zuweisungen_%s.xlsx", time.Now().Format("2006-01-02"))
	ac.sendXLSX(c, name, func(w io.Writer) error { return sheet.WriteAssignments(w, rows) })
}

package controllers

import (
	"context"
	"net/http"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/sheet"

	"github.com/gin-gonic/gin"
)

type StudentController struct{ *Srv }

func NewStudentController(s *Srv) *StudentController { return &StudentController{Srv: s} }

// GET /api/students[?unassigned=true]
func (sc *StudentController) ListStudents(c *gin.Context) {
	r := sc.repo(c)
	list := r.ListStudents
	if c.Query("unassigned") == "true" {
		list = r.ListUnassignedStudents
	}
	students, err := list(c.Request.Context())
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"students": students})
}

// POST /api/students/import
func (sc *StudentController) ImportStudents(c *gin.Context) {
	f, ok := sc.spreadsheet(c)
	if !ok {
		return
	}
	defer f.Close()
	recs, err := sheet.ParseStudents(f)
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sc.repo(c).ImportStudents(c.Request.Context(), recs))
}

// GET /api/students/:id
func (sc *StudentController) GetStudent(c *gin.Context) {
	d, err := sc.repo(c).StudentDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// DELETE /api/students/:id[?confirm=token]
func (sc *StudentController) DeleteStudent(c *gin.Context) {
	id := c.Param("id")
	if !sc.confirmed(c, db.ActionStudentDelete, id, func(ctx context.Context) (any, error) {
		return sc.repo(c).PreviewStudentDelete(ctx, id)
	}) {
		return
	}
	counts, err := sc.repo(c).DeleteStudent(c.Request.Context(), id)
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	sc.audit(c, db.ActionStudentDelete, id, *counts)
	c.JSON(http.StatusOK, app.H{"deleted": counts})
}

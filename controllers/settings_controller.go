package controllers

import (
	"net/http"

	"device_inventory_tool/app"
	"device_inventory_tool/db"

	"github.com/gin-gonic/gin"
)

type SettingsController struct{ *Srv }

func NewSettingsController(s *Srv) *SettingsController { return &SettingsController{Srv: s} }

// GET /api/settings/global
func (sc *SettingsController) Get(c *gin.Context) {
	st, err := sc.Repo.GetSettings(c.Request.Context())
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// PUT /api/settings/global
func (sc *SettingsController) Update(c *gin.Context) {
	var in struct {
		DefaultDeviceModel string `json:"defaultDeviceModel" binding:"max=200"`
		DefaultStylus      string `json:"defaultStylus" binding:"max=120"`
		DefaultCase        string `json:"defaultCase" binding:"max=120"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	st, err := sc.Repo.UpdateSettings(c.Request.Context(), db.SettingsInput{
		DefaultDeviceModel: in.DefaultDeviceModel,
		DefaultStylus:      in.DefaultStylus,
		DefaultCase:        in.DefaultCase,
	})
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// GET /api/audit-log?action=&limit=
func (sc *SettingsController) AuditLog(c *gin.Context) {
	var in struct {
		Action string `form:"action"`
		Limit  int    `form:"limit,default=100" binding:"min=1,max=500"`
	}
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	logs, err := sc.Repo.ListAuditLog(c.Request.Context(), in.Action, in.Limit)
	if err != nil {
		sc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"entries": logs})
}

package controllers

import (
	"net/http"
	"strconv"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/models"
	"device_inventory_tool/sheet"

	"github.com/gin-gonic/gin"
)

type DeviceController struct{ *Srv }

func NewDeviceController(s *Srv) *DeviceController { return &DeviceController{Srv: s} }

// GET /api/devices?status=
func (dc *DeviceController) ListDevices(c *gin.Context) {
	var status models.DeviceStatus
	if q := c.Query("status"); q != "" {
		st, ok := models.ParseDeviceStatus(q)
		if !ok {
			badRequest(c, "unknown status "+strconv.Quote(q))
			return
		}
		status = st
	}
	devices, err := dc.repo(c).ListDevices(c.Request.Context(), status)
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"devices": devices})
}

// POST /api/devices/import
func (dc *DeviceController) ImportDevices(c *gin.Context) {
	f, ok := dc.spreadsheet(c)
	if !ok {
		return
	}
	defer f.Close()
	recs, err := sheet.ParseDevices(f)
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	res, err := dc.repo(c).ImportDevices(c.Request.Context(), recs)
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /api/devices/:id/status?status=defekt&override=true
func (dc *DeviceController) SetStatus(c *gin.Context) {
	var in struct {
		Status   string `form:"status" binding:"required"`
		Override bool   `form:"override"`
	}
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	status, ok := models.ParseDeviceStatus(in.Status)
	if !ok {
		badRequest(c, "unknown status "+strconv.Quote(in.Status))
		return
	}
	id := c.Param("id")
	r := dc.repo(c)
	before, err := r.FindDeviceByID(c.Request.Context(), id)
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	d, err := r.SetDeviceStatus(c.Request.Context(), id, status, in.Override)
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	if in.Override && before.Status != d.Status {
		dc.audit(c, db.ActionStatusOverride, d.ID, app.H{"from": before.Status, "to": d.Status})
	}
	c.JSON(http.StatusOK, app.H{"device": d, "statusLabel": d.Status.Label()})
}

// GET /api/devices/:id/history
func (dc *DeviceController) History(c *gin.Context) {
	h, err := dc.repo(c).DeviceHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		dc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

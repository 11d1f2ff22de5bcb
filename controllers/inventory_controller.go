package controllers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"device_inventory_tool/sheet"

	"github.com/gin-gonic/gin"
)

type InventoryController struct{ *Srv }

func NewInventoryController(s *Srv) *InventoryController { return &InventoryController{Srv: s} }

// GET /api/exports/inventory
func (ic *InventoryController) Export(c *gin.Context) {
	rows, err := ic.repo(c).ExportInventory(c.Request.Context())
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	name := fmt.Sprintf("inventar_%s.xlsx", time.Now().Format("2006-01-02"))
	ic.sendXLSX(c, name, func(w io.Writer) error { return sheet.WriteInventory(w, rows) })
}

// POST /api/imports/inventory
func (ic *InventoryController) Import(c *gin.Context) {
	f, ok := ic.spreadsheet(c)
	if !ok {
		return
	}
	defer f.Close()
	recs, err := sheet.ParseInventory(f)
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	res, err := ic.repo(c).ImportInventory(c.Request.Context(), recs)
	if err != nil {
		ic.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

package controllers

import (
	"context"
	"fmt"
	"net/http"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/pdfform"

	"github.com/gin-gonic/gin"
)

type ContractController struct{ *Srv }

func NewContractController(s *Srv) *ContractController { return &ContractController{Srv: s} }

// GET /api/contracts/unassigned
func (cc *ContractController) ListUnassigned(c *gin.Context) {
	cs, err := cc.repo(c).ListUnassignedContracts(c.Request.Context())
	if err != nil {
		cc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"contracts": cs})
}

// POST /api/contracts/upload-multiple (multipart files, optional fields[<filename>]=<json>)
// 每个文件单独处理；超过数量上限或含非 PDF 文件时整批拒绝。
// 没有对应 fields 的文件交给提取服务，未配置提取服务时作为提取失败保存为未分配合同。
func (cc *ContractController) UploadMultiple(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "expected multipart form")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "no files uploaded")
		return
	}
	if limit := cc.Cfg.MaxContractUploads; limit > 0 && len(files) > limit {
		badRequest(c, fmt.Sprintf("at most %d files per upload", limit))
		return
	}
	for _, fh := range files {
		if err := pdfform.CheckExtension(fh.Filename); err != nil {
			cc.respondErr(c, err)
			return
		}
	}
	fields := c.PostFormMap("fields")

	ctx := c.Request.Context()
	ups := make([]db.ContractUpload, 0, len(files))
	var rejected []db.IngestOutcome
	for _, fh := range files {
		data, err := cc.readUpload(fh)
		if err != nil {
			rejected = append(rejected, db.IngestOutcome{Filename: fh.Filename, Kind: kindOf(err), Error: err.Error()})
			continue
		}
		ups = append(ups, cc.contractUpload(ctx, fh.Filename, data, fields[fh.Filename]))
	}
	res := cc.repo(c).IngestMany(ctx, ups)
	res.Failed += len(rejected)
	res.Items = append(res.Items, rejected...)
	c.JSON(http.StatusOK, res)
}

// POST /api/contracts/:id/assign/:assignmentId
func (cc *ContractController) ManualAssign(c *gin.Context) {
	out, err := cc.repo(c).ManualAssignContract(c.Request.Context(), c.Param("id"), c.Param("assignmentId"))
	if err != nil {
		cc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/contracts/:id
func (cc *ContractController) GetContract(c *gin.Context) {
	ct, err := cc.repo(c).GetContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		cc.respondErr(c, err)
		return
	}
	ok, problems := ct.ContractFields().Validate()
	c.JSON(http.StatusOK, app.H{"contract": ct, "valid": ok, "problems": problems})
}

// GET /api/contracts/:id/download
func (cc *ContractController) Download(c *gin.Context) {
	ct, err := cc.repo(c).ContractData(c.Request.Context(), c.Param("id"))
	if err != nil {
		cc.respondErr(c, err)
		return
	}
	attachment(c, ct.Filename, "application/pdf", ct.Data)
}

// DELETE /api/contracts/:id[?confirm=token]
func (cc *ContractController) DeleteContract(c *gin.Context) {
	id := c.Param("id")
	if !cc.confirmed(c, db.ActionContractDelete, id, func(ctx context.Context) (any, error) {
		return cc.repo(c).GetContract(ctx, id)
	}) {
		return
	}
	ct, err := cc.repo(c).DeleteContract(c.Request.Context(), id)
	if err != nil {
		cc.respondErr(c, err)
		return
	}
	cc.audit(c, db.ActionContractDelete, id, app.H{"filename": ct.Filename})
	c.JSON(http.StatusOK, app.H{"deleted": ct})
}

package controllers

import (
	"context"
	"net/http"
	"strconv"

	"device_inventory_tool/app"
	"device_inventory_tool/db"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RetentionController struct{ *Srv }

func NewRetentionController(s *Srv) *RetentionController { return &RetentionController{Srv: s} }

// POST /api/data-protection/cleanup-old-data {olderThanDays}[?confirm=token]
func (rc *RetentionController) Cleanup(c *gin.Context) {
	var in struct {
		OlderThanDays int `json:"olderThanDays" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	threshold, err := rc.Repo.ThresholdFor(in.OlderThanDays)
	if err != nil {
		rc.respondErr(c, err)
		return
	}
	// token 绑定天数，确认时换了天数即失效
	target := strconv.Itoa(in.OlderThanDays)
	if !rc.confirmed(c, db.ActionPurge, target, func(ctx context.Context) (any, error) {
		return rc.Repo.PreviewPurge(ctx, threshold)
	}) {
		return
	}
	counts, err := rc.Repo.PurgeOlderThan(c.Request.Context(), threshold)
	if err != nil {
		rc.respondErr(c, err)
		return
	}
	rc.audit(c, db.ActionPurge, target, *counts)
	rc.Log.Info("retention purge",
		zap.String("by", c.GetString("username")),
		zap.Time("threshold", counts.Threshold),
		zap.Int64("students", counts.Students),
		zap.Int64("contracts", counts.Contracts),
	)
	c.JSON(http.StatusOK, app.H{"deleted": counts})
}

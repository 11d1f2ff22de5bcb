// controllers/srv.go
package controllers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/pdfform"
	"device_inventory_tool/session"
	"device_inventory_tool/sheet"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Srv struct {
	Repo      *db.Repo
	AppSess   *session.AppSessionStore
	Confirm   *session.ConfirmStore
	Locks     *session.RunLock
	Extractor pdfform.Extractor
	Log       *zap.Logger
	Cfg       app.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:      db.NewRepo(a.DB),
		AppSess:   a.AppSessions(),
		Confirm:   session.NewConfirmStore(a.RDB, a.Config.ConfirmTTL),
		Locks:     session.NewRunLock(a.RDB),
		Extractor: pdfform.New(a.Config.PDFExtractorURL, a.Config.PDFExtractTimeout),
		Log:       a.Log,
		Cfg:       a.Config,
	}
}

// --- helpers ---

// respondErr 把仓库层哨兵错误映射为 HTTP 状态码
func (s *Srv) respondErr(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrValidation), errors.Is(err, sheet.ErrFormat), errors.Is(err, pdfform.ErrNotPDF):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, db.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, db.ErrInvalidState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrConfirmInvalid), errors.Is(err, session.ErrConfirmMismatch):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.Log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("requestId", c.GetString("requestID")),
			zap.Error(err),
		)
		c.JSON(status, app.H{"error": "internal error"})
		return
	}
	c.JSON(status, app.H{"error": err.Error(), "kind": kindOf(err)})
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, sheet.ErrFormat), errors.Is(err, pdfform.ErrNotPDF):
		return "validation"
	case errors.Is(err, session.ErrConfirmInvalid), errors.Is(err, session.ErrConfirmMismatch):
		return "confirmation"
	}
	return db.ErrorKind(err)
}

// repo 按当前登录账号限定可见范围的仓库
func (s *Srv) repo(c *gin.Context) *db.Repo {
	return s.Repo.As(db.Viewer{UserID: c.GetString("userID"), Admin: c.GetBool("isAdmin")})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, app.H{"error": msg, "kind": "validation"})
}

func actor(c *gin.Context) db.Actor {
	return db.Actor{ID: c.GetString("userID"), Username: c.GetString("username")}
}

// confirmed 两阶段确认：没有 ?confirm 时签发 token 并返回 202 + 预览；
// 返回 true 表示 token 有效，调用方继续执行
func (s *Srv) confirmed(c *gin.Context, action, target string, preview func(ctx context.Context) (any, error)) bool {
	ctx := c.Request.Context()
	uid := c.GetString("userID")
	token := c.Query("confirm")
	if token == "" {
		p, err := preview(ctx)
		if err != nil {
			s.respondErr(c, err)
			return false
		}
		conf, err := s.Confirm.Issue(ctx, uid, action, target)
		if err != nil {
			s.respondErr(c, err)
			return false
		}
		c.JSON(http.StatusAccepted, app.H{
			"confirmToken": conf.Token,
			"expiresAt":    conf.ExpiresAt,
			"preview":      p,
		})
		return false
	}
	if err := s.Confirm.Consume(ctx, token, uid, action, target); err != nil {
		s.respondErr(c, err)
		return false
	}
	return true
}

func (s *Srv) audit(c *gin.Context, action, target string, detail any) {
	var d *string
	if detail != nil {
		str := fmt.Sprintf("%+v", detail)
		d = &str
	}
	if _, err := s.Repo.LogAction(c.Request.Context(), actor(c), action, target, d); err != nil {
		s.Log.Warn("audit log", zap.String("action", action), zap.String("target", target), zap.Error(err))
	}
}

// readUpload 读取单个 multipart 文件，超过上限返回 400
func (s *Srv) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if s.Cfg.MaxUploadBytes > 0 && fh.Size > s.Cfg.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", db.ErrValidation, fh.Filename, s.Cfg.MaxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// spreadsheet 取出 multipart 中的 xlsx
func (s *Srv) spreadsheet(c *gin.Context) (multipart.File, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file")
		return nil, false
	}
	if err := sheet.CheckExtension(fh.Filename); err != nil {
		s.respondErr(c, err)
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		s.respondErr(c, err)
		return nil, false
	}
	return f, true
}

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func attachment(c *gin.Context, filename, mime string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(filename)))
	c.Data(http.StatusOK, mime, data)
}

// sendXLSX 先写入内存，失败时仍能返回 JSON 错误
func (s *Srv) sendXLSX(c *gin.Context, filename string, write func(io.Writer) error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		s.respondErr(c, err)
		return
	}
	attachment(c, filename, xlsxMIME, buf.Bytes())
}

// contractUpload 优先使用客户端附带的 fields JSON，否则调用提取服务
func (s *Srv) contractUpload(ctx context.Context, filename string, data []byte, fieldsJSON string) db.ContractUpload {
	up := db.ContractUpload{Filename: filename, Data: data}
	var (
		raw map[string]any
		err error
	)
	if fieldsJSON != "" {
		raw, err = pdfform.ParseFieldsJSON(fieldsJSON)
	} else {
		raw, err = s.Extractor.Extract(ctx, filename, data)
	}
	if err != nil {
		up.ExtractErr = err.Error()
		return up
	}
	up.Raw = raw
	up.Fields = pdfform.ToContractFields(raw)
	return up
}

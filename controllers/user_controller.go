package controllers

import (
	"net/http"
	"strings"

	"device_inventory_tool/app"
	"device_inventory_tool/db"
	"device_inventory_tool/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

// GET /api/me
func (uc *UserController) Me(c *gin.Context) {
	u, err := uc.Repo.FindUserByID(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"user":    u,
		"isAdmin": c.GetBool("isAdmin"),
	})
}

// POST /api/logout 删除 Redis 会话并清空 Cookie
func (uc *UserController) Logout(c *gin.Context) {
	if tok := c.GetString("sessionToken"); tok != "" {
		if err := uc.AppSess.Delete(c.Request.Context(), tok); err != nil {
			uc.respondErr(c, err)
			return
		}
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(uc.Cfg.WebOrigin, "https://"),
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/logout-all 撤销当前用户的所有会话
func (uc *UserController) LogoutAll(c *gin.Context) {
	if err := uc.AppSess.RevokeAllForUser(c.Request.Context(), c.GetString("userID")); err != nil {
		uc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// --- 管理员：账号管理 ---

// GET /api/admin/users?q=&page=&size=
func (uc *UserController) ListUsers(c *gin.Context) {
	var in struct {
		Q    string `form:"q"`
		Page int    `form:"page,default=1" binding:"min=1"`
		Size int    `form:"size,default=20" binding:"min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	res, err := uc.Repo.ListUsers(c.Request.Context(), in.Q, in.Page, in.Size)
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /api/admin/users/:id
func (uc *UserController) GetUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	u, err := uc.Repo.FindUserByID(c.Request.Context(), id)
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

// POST /api/admin/users
func (uc *UserController) CreateUser(c *gin.Context) {
	var in struct {
		Username    string `json:"username" binding:"required,max=255"`
		DisplayName string `json:"displayName" binding:"max=255"`
		Role        string `json:"role" binding:"omitempty,oneof=admin user"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := uc.Repo.CreateUser(c.Request.Context(), db.NewUser{
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Role:        models.UserRole(in.Role),
		CreatedBy:   c.GetString("userID"),
	})
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	uc.audit(c, db.ActionUserCreate, u.ID, app.H{"username": u.Username, "role": u.Role})
	c.JSON(http.StatusCreated, app.H{"user": u})
}

// PUT /api/admin/users/:id
func (uc *UserController) UpdateUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var in struct {
		DisplayName *string `json:"displayName" binding:"omitempty,max=255"`
		Role        *string `json:"role" binding:"omitempty,oneof=admin user"`
		IsActive    *bool   `json:"isActive"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	self := id == c.GetString("userID")
	if self && in.IsActive != nil && !*in.IsActive {
		badRequest(c, "cannot deactivate yourself")
		return
	}
	upd := db.UserUpdate{DisplayName: in.DisplayName, IsActive: in.IsActive}
	if in.Role != nil {
		role := models.UserRole(*in.Role)
		upd.Role = &role
	}
	u, err := uc.Repo.UpdateUser(c.Request.Context(), id, upd)
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	if !u.IsActive {
		uc.revokeSessions(c, u.ID)
	}
	uc.audit(c, db.ActionUserUpdate, u.ID, app.H{"role": u.Role, "isActive": u.IsActive})
	c.JSON(http.StatusOK, app.H{"user": u})
}

// DELETE /api/admin/users/:id 停用账号并撤销其会话；数据保留
func (uc *UserController) DeactivateUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if id == c.GetString("userID") {
		badRequest(c, "cannot deactivate yourself")
		return
	}
	u, err := uc.Repo.DeactivateUser(c.Request.Context(), id)
	if err != nil {
		uc.respondErr(c, err)
		return
	}
	uc.revokeSessions(c, u.ID)
	uc.audit(c, db.ActionUserDeactivate, u.ID, app.H{"username": u.Username})
	c.JSON(http.StatusOK, app.H{"user": u})
}

// revokeSessions 失败只记录：AuthRequired 仍会拒绝停用账号的会话
func (uc *UserController) revokeSessions(c *gin.Context, userID string) {
	if err := uc.AppSess.RevokeAllForUser(c.Request.Context(), userID); err != nil {
		uc.Log.Warn("revoke sessions", zap.String("userId", userID), zap.Error(err))
	}
}

func userIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		badRequest(c, "invalid user id")
		return "", false
	}
	return id, true
}

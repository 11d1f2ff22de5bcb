package app

import (
	"errors"
	"net/http"
	"strings"

	"device_inventory_tool/db"
	"device_inventory_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const AppSessionCookie = "app_session"

// SessionToken 优先 Authorization: Bearer，其次 Cookie
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if ck, err := c.Request.Cookie(AppSessionCookie); err == nil {
		return ck.Value
	}
	return ""
}

func AuthRequired(appSess *session.AppSessionStore, repo *db.Repo, cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), token)
		switch {
		case errors.Is(err, redis.Nil):
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		case err != nil:
			// 会话存储不可用不等于未登录
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, H{"error": "session store unavailable"})
			return
		}

		// 这里确认用户仍存在且未停用，并把 isAdmin 放进 Context（只查一次）
		u, err := repo.FindUserByID(c.Request.Context(), as.UserID)
		switch {
		case errors.Is(err, db.ErrNotFound):
			_ = appSess.Delete(c.Request.Context(), token)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		case err != nil:
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, H{"error": "user store unavailable"})
			return
		}
		if !u.IsActive {
			_ = appSess.Delete(c.Request.Context(), token)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "account deactivated"})
			return
		}
		c.Set("userID", as.UserID)
		c.Set("username", u.Username)
		c.Set("sessionToken", token)
		c.Set("isAdmin", u.IsAdmin() || cfg.IsAdminUsername(u.Username))

		c.Next()
	}
}

// AdminOnly 依赖 AuthRequired 已设置的 isAdmin
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get("userID"); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !c.GetBool("isAdmin") {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

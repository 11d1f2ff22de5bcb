// app/bootstrap.go
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"device_inventory_tool/db"
	"device_inventory_tool/session"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IssuedSession 由 CLI 打印给运维
type IssuedSession struct {
	UserID   string
	Username string
	Token    string
	Created  bool
}

// BootstrapAdmin 确保管理员账号存在并签发一个会话 token。
// 只允许 ADMIN_EMAILS 中的账号，或已是启用中管理员的账号；
// ADMIN_EMAILS 中被停用的账号会被重新启用。
func BootstrapAdmin(ctx context.Context, cfg Config, repo *db.Repo, appSess *session.AppSessionStore, username string, log *zap.Logger) (*IssuedSession, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	listed := cfg.IsAdminUsername(username)

	existing, err := repo.FindUserByUsername(ctx, username)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if existing == nil && !listed {
		return nil, fmt.Errorf("%s is not listed in ADMIN_EMAILS", username)
	}
	if existing != nil && !listed {
		if !existing.IsAdmin() {
			return nil, fmt.Errorf("%s is not an admin", username)
		}
		if !existing.IsActive {
			return nil, fmt.Errorf("%s is deactivated", username)
		}
	}

	u, err := repo.FindOrCreateUser(ctx, username, uuid.NewString(), true)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if !u.IsAdmin() || !u.IsActive {
		if err := repo.SetUserAdmin(ctx, u.ID, true); err != nil {
			return nil, err
		}
	}

	token, err := appSess.Issue(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	if err := repo.TouchUserLogin(ctx, u.ID); err != nil {
		log.Warn("touch login", zap.String("userId", u.ID), zap.Error(err))
	}
	log.Info("[BOOTSTRAP] session issued",
		zap.String("username", u.Username),
		zap.Bool("created", existing == nil),
		zap.Duration("ttl", appSess.TTL()),
	)
	return &IssuedSession{UserID: u.ID, Username: u.Username, Token: token, Created: existing == nil}, nil
}

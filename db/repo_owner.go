// db/repo_owner.go
package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Viewer 发起请求的账号。管理员看到全部记录；普通用户只看到 user_id 为自己的记录。
type Viewer struct {
	UserID string
	Admin  bool
}

// As returns a copy of the repo whose reads are limited to, and whose new
// rows are owned by, the given viewer. The zero Viewer (CLI, scheduler) sees
// everything and creates unowned rows.
func (r *Repo) As(v Viewer) *Repo {
	cp := *r
	cp.viewer = v
	return &cp
}

func (r *Repo) restricted() bool { return r.viewer.UserID != "" && !r.viewer.Admin }

// owned 给查询加上归属过滤；col 带表别名，如 "d.user_id"
func (r *Repo) owned(q *gorm.DB, col string) *gorm.DB {
	if !r.restricted() {
		return q
	}
	return q.Where(col+" = ?", r.viewer.UserID)
}

func (r *Repo) checkOwner(owner *string, what, id string) error {
	if !r.restricted() {
		return nil
	}
	if owner == nil || *owner != r.viewer.UserID {
		return fmt.Errorf("%w: %s %s belongs to another user", ErrForbidden, what, id)
	}
	return nil
}

// ownerID 新建记录的 user_id
func (r *Repo) ownerID() *string {
	if r.viewer.UserID == "" {
		return nil
	}
	id := r.viewer.UserID
	return &id
}

// sameOwner 设备与学生必须属于同一账号才能配对
func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ownerKey(id *string) string {
	if id == nil {
		return ""
	}
	return *id
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike 配合 ESCAPE '\' 使用
func escapeLike(s string) string { return likeEscaper.Replace(s) }

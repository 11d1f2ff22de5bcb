// app/seenmw.go
package app

import (
	"time"

	"device_inventory_tool/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TouchLastSeen 每个用户在 throttle 内只写一次 last_seen_at
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("userID")
		if uid == "" {
			c.Next()
			return
		}

		key := "user:lastseen:" + uid
		if ok, _ := rdb.SetNX(c, key, "1", throttle).Result(); ok {
			if err := repo.TouchUserSeen(c, uid); err != nil { // 不阻塞请求
				log.Warn("touch last seen", zap.String("userId", uid), zap.Error(err))
			}
		}
		c.Next()
	}
}

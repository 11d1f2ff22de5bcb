package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RunLock 跨实例互斥（SET NX + TTL）
type RunLock struct {
	rdb *redis.Client
}

func NewRunLock(rdb *redis.Client) *RunLock { return &RunLock{rdb: rdb} }

func lockKey(name string) string { return fmt.Sprintf("app:lock:%s", name) }

// TryAcquire returns ok=false when another holder has the lock. The returned
// release func is a no-op in that case.
func (l *RunLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	owner := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, lockKey(name), owner, ttl).Result()
	if err != nil || !ok {
		return func(context.Context) error { return nil }, false, err
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{lockKey(name)}, owner).Err()
	}, true, nil
}

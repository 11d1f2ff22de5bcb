package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAppSessionStore(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	s := NewAppSessionStore(rdb, time.Hour)

	tok, err := s.Issue(ctx, "u1")
	require.NoError(t, err)
	other, err := s.Issue(ctx, "u1")
	require.NoError(t, err)

	as, err := s.Get(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", as.UserID)
	assert.Equal(t, as.IssuedAt+3600, as.ExpiresAt)

	require.NoError(t, s.Delete(ctx, tok))
	_, err = s.Get(ctx, tok)
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, s.RevokeAllForUser(ctx, "u1"))
	_, err = s.Get(ctx, other)
	assert.ErrorIs(t, err, redis.Nil)

	tok, err = s.Issue(ctx, "u2")
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, tok)
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, mr.Set("app:sess:broken", "{"))
	_, err = s.Get(ctx, "broken")
	assert.ErrorIs(t, err, redis.Nil)
}

func TestConfirmStore(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	s := NewConfirmStore(rdb, 2*time.Minute)

	c, err := s.Issue(ctx, "u1", "student.delete", "s-1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Token)

	// 一次性
	require.NoError(t, s.Consume(ctx, c.Token, "u1", "student.delete", "s-1"))
	assert.ErrorIs(t, s.Consume(ctx, c.Token, "u1", "student.delete", "s-1"), ErrConfirmInvalid)

	t.Run("bound to action and target", func(t *testing.T) {
		c, err := s.Issue(ctx, "u1", "student.delete", "s-1")
		require.NoError(t, err)
		assert.ErrorIs(t, s.Consume(ctx, c.Token, "u1", "student.delete", "s-2"), ErrConfirmMismatch)
		assert.ErrorIs(t, s.Consume(ctx, c.Token, "u1", "student.delete", "s-1"), ErrConfirmInvalid)

		c, err = s.Issue(ctx, "u1", "contract.delete", "c-1")
		require.NoError(t, err)
		assert.ErrorIs(t, s.Consume(ctx, c.Token, "u2", "contract.delete", "c-1"), ErrConfirmMismatch)
	})

	t.Run("expires", func(t *testing.T) {
		c, err := s.Issue(ctx, "u1", "retention.purge", "365")
		require.NoError(t, err)
		mr.FastForward(3 * time.Minute)
		assert.ErrorIs(t, s.Consume(ctx, c.Token, "u1", "retention.purge", "365"), ErrConfirmInvalid)
	})

	assert.ErrorIs(t, s.Consume(ctx, "", "u1", "x", "y"), ErrConfirmInvalid)
}

func TestRunLock(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := NewRunLock(rdb)

	release, ok, err := l.TryAcquire(ctx, "auto-assign", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryAcquire(ctx, "auto-assign", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	release2, ok, err := l.TryAcquire(ctx, "auto-assign", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 过期后被别人拿到的锁，旧持有者不能释放
	mr.FastForward(2 * time.Minute)
	_, ok, err = l.TryAcquire(ctx, "auto-assign", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release2(ctx))
	assert.True(t, mr.Exists("app:lock:auto-assign"))
}

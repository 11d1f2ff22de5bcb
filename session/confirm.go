package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrConfirmInvalid  = errors.New("confirmation token unknown or expired")
	ErrConfirmMismatch = errors.New("confirmation token was issued for another operation")
)

// ConfirmStore 两阶段确认：第一次调用发 token，第二次带 token 执行。
// token 一次性（GETDEL），绑定 action + target。
type ConfirmStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewConfirmStore(rdb *redis.Client, ttl time.Duration) *ConfirmStore {
	return &ConfirmStore{rdb: rdb, ttl: ttl}
}

type pendingConfirm struct {
	Action string `json:"action"`
	Target string `json:"target"`
	UserID string `json:"uid"`
}

type Confirmation struct {
	Token     string    `json:"confirmToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func confirmKey(token string) string { return fmt.Sprintf("app:confirm:%s", token) }

func (s *ConfirmStore) Issue(ctx context.Context, userID, action, target string) (*Confirmation, error) {
	token := uuid.NewString()
	b, _ := json.Marshal(pendingConfirm{Action: action, Target: target, UserID: userID})
	if err := s.rdb.Set(ctx, confirmKey(token), b, s.ttl).Err(); err != nil {
		return nil, err
	}
	return &Confirmation{Token: token, ExpiresAt: time.Now().Add(s.ttl).UTC()}, nil
}

// Consume 校验并作废 token；不匹配时 token 同样失效
func (s *ConfirmStore) Consume(ctx context.Context, token, userID, action, target string) error {
	if token == "" {
		return ErrConfirmInvalid
	}
	b, err := s.rdb.GetDel(ctx, confirmKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrConfirmInvalid
	}
	if err != nil {
		return err
	}
	var p pendingConfirm
	if err := json.Unmarshal(b, &p); err != nil {
		return ErrConfirmInvalid
	}
	if p.Action != action || p.Target != target || p.UserID != userID {
		return ErrConfirmMismatch
	}
	return nil
}

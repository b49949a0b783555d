package redis

import (
	"Folio/internal/pkg/consts"
	"context"
	log "log/slog"
	"strconv"
	"time"
)

// NotifyBus 基于 Redis pub/sub 的按用户推送总线
type NotifyBus struct{}

func NewNotifyBus() *NotifyBus {
	return &NotifyBus{}
}

func userChannel(userID uint64) string {
	return consts.NotifyUserChannel + strconv.FormatUint(userID, 10)
}

// Publish 推送一帧到用户频道
func (b *NotifyBus) Publish(ctx context.Context, userID uint64, payload []byte) error {
	return Publish(ctx, userChannel(userID), payload)
}

// Subscribe 订阅用户频道，返回消息通道和关闭函数
func (b *NotifyBus) Subscribe(ctx context.Context, userID uint64) (<-chan []byte, func() error, error) {
	pubsub := Subscribe(ctx, userChannel(userID))
	// 等待订阅确认，避免首条推送丢失
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-time.After(5 * time.Second):
				log.Warn("notify subscriber is slow, dropping frame", "userID", userID)
			}
		}
	}()
	return out, pubsub.Close, nil
}

// TokenBlacklist 注销令牌黑名单
type TokenBlacklist struct{}

func NewTokenBlacklist() *TokenBlacklist {
	return &TokenBlacklist{}
}

func (TokenBlacklist) Revoke(ctx context.Context, signature string, ttl time.Duration) error {
	return SetWithExpiration(ctx, consts.TokenBlacklistKey+signature, 1, ttl)
}

func (TokenBlacklist) IsRevoked(ctx context.Context, signature string) (bool, error) {
	v, err := GetValue(ctx, consts.TokenBlacklistKey+signature)
	if err != nil {
		return false, err
	}
	return v != "", nil
}

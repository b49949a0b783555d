package service

import "context"

// NotifyBus 按用户投递实时帧
type NotifyBus interface {
	Publish(ctx context.Context, userID uint64, payload []byte) error
	Subscribe(ctx context.Context, userID uint64) (<-chan []byte, func() error, error)
}

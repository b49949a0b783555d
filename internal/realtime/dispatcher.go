package realtime

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"

	"github.com/goccy/go-json"
)

var ErrMalformedFrame = errors.New("消息格式错误")

// Envelope 服务端与客户端之间传输的统一消息结构
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// HandlerFunc 事件处理函数
type HandlerFunc func(ctx context.Context, data json.RawMessage) error

type registration struct {
	name string
	fn   HandlerFunc
}

// Dispatcher 按事件名分发服务端推送
//
// 同一 (event, name) 只会注册一次，重复注册不会导致重复投递。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]registration
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string][]registration)}
}

// Register 注册处理函数，返回是否为新注册
func (d *Dispatcher) Register(event, name string, fn HandlerFunc) bool {
	if fn == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.handlers[event] {
		if r.name == name {
			return false
		}
	}
	d.handlers[event] = append(d.handlers[event], registration{name: name, fn: fn})
	return true
}

// Unregister 注销指定处理函数
func (d *Dispatcher) Unregister(event, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[event]
	for i, r := range list {
		if r.name == name {
			d.handlers[event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.handlers[event]) == 0 {
		delete(d.handlers, event)
	}
}

// RemoveAll 移除全部处理函数，连接销毁前调用
func (d *Dispatcher) RemoveAll() {
	d.mu.Lock()
	d.handlers = make(map[string][]registration)
	d.mu.Unlock()
}

// HandlerCount 某事件当前的处理函数数量
func (d *Dispatcher) HandlerCount(event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event])
}

// Dispatch 解析一帧原始消息并投递
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return ErrMalformedFrame
	}
	d.Deliver(ctx, env)
	return nil
}

// Deliver 将事件按注册顺序交给处理函数；单个处理函数失败不影响其他处理函数
func (d *Dispatcher) Deliver(ctx context.Context, env Envelope) {
	d.mu.RLock()
	list := make([]registration, len(d.handlers[env.Event]))
	copy(list, d.handlers[env.Event])
	d.mu.RUnlock()

	for _, r := range list {
		d.invoke(ctx, env, r)
	}
}

func (d *Dispatcher) invoke(ctx context.Context, env Envelope, r registration) {
	defer func() {
		if p := recover(); p != nil {
			log.ErrorContext(ctx, "event handler panicked", "event", env.Event, "handler", r.name, "panic", p)
		}
	}()
	if err := r.fn(ctx, env.Data); err != nil {
		log.WarnContext(ctx, "event dropped", "event", env.Event, "handler", r.name, "err", err)
	}
}

package realtime

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	DefaultReconnectDelay = time.Second
	DefaultMaxAttempts    = 5
	DefaultReadTimeout    = 60 * time.Second
	writeTimeout          = 10 * time.Second
)

var ErrNotConnected = errors.New("实时连接未建立")

// State 连接状态
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	GaveUp
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case GaveUp:
		return "gave_up"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ManagerOptions 连接管理器配置
type ManagerOptions struct {
	URL              string
	ReconnectDelay   time.Duration
	MaxAttempts      int
	HandshakeTimeout time.Duration
	// ReadTimeout 超过该时长既无数据帧也无 ping 即视为断线
	ReadTimeout time.Duration
	// OnState 状态变化回调，在管理器锁之外调用
	OnState func(State)
}

// Manager 持有唯一的实时连接，生命周期与登录会话绑定
type Manager struct {
	opts       ManagerOptions
	dialer     *websocket.Dialer
	dispatcher *Dispatcher

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	gen      uint64
	cancel   context.CancelFunc
	failures int

	writeMu sync.Mutex
}

func NewManager(opts ManagerOptions, dispatcher *Dispatcher) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher()
	}
	return &Manager{
		opts:       opts,
		dialer:     &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		dispatcher: dispatcher,
	}
}

func (m *Manager) Dispatcher() *Dispatcher {
	return m.dispatcher
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Failures 当前连接周期内连续失败的次数
func (m *Manager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// OpenForSession 已有活动连接时直接返回；传输错误只体现为状态变化
func (m *Manager) OpenForSession(token string) {
	m.mu.Lock()
	switch m.state {
	case Connecting, Connected, Reconnecting:
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.failures = 0
	m.state = Connecting
	m.mu.Unlock()

	m.notify(Connecting)
	go m.run(ctx, gen, token)
}

// Close 先移除全部处理函数再断开连接，可重复调用
func (m *Manager) Close() {
	m.mu.Lock()
	m.dispatcher.RemoveAll()
	if m.state == Disconnected && m.conn == nil && m.cancel == nil {
		m.mu.Unlock()
		return
	}
	m.shutdownLocked()
}

// closeGen 只拆除指定代次，期间已重新打开的连接不受影响
func (m *Manager) closeGen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.dispatcher.RemoveAll()
	m.shutdownLocked()
}

// shutdownLocked 调用方持有 mu，返回前释放
func (m *Manager) shutdownLocked() {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	changed := m.state != Disconnected
	m.state = Disconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	if changed {
		log.Info("socket closed")
		m.notify(Disconnected)
	}
}

// Emit 向服务端发送一帧消息
func (m *Manager) Emit(event string, data any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (m *Manager) run(ctx context.Context, gen uint64, token string) {
	for {
		conn, err := m.dial(ctx, gen, token)
		if err != nil {
			if ctx.Err() != nil || !m.current(gen) {
				return
			}
			log.Error("socket reconnection exhausted", "attempts", m.opts.MaxAttempts, "err", err)
			if m.transition(gen, GaveUp) {
				m.closeGen(gen)
			}
			return
		}

		if !m.attach(gen, conn) {
			_ = conn.Close()
			return
		}

		m.readLoop(ctx, gen, conn)

		if ctx.Err() != nil || !m.current(gen) {
			return
		}
		if !m.transition(gen, Reconnecting) {
			return
		}
	}
}

// dial 固定间隔重试，单个周期最多 MaxAttempts 次
func (m *Manager) dial(ctx context.Context, gen uint64, token string) (*websocket.Conn, error) {
	target, err := handshakeURL(m.opts.URL, token)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	op := func() (*websocket.Conn, error) {
		conn, resp, err := m.dialer.DialContext(ctx, target, header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			n := m.recordFailure(gen)
			log.Warn("socket dial failed", "attempt", n, "err", err)
			return nil, err
		}
		return conn, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.opts.ReconnectDelay), uint64(m.opts.MaxAttempts-1)),
		ctx,
	)
	return backoff.RetryWithData(op, policy)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	for {
		_ = conn.SetReadDeadline(time.Now().Add(m.opts.ReadTimeout))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if m.current(gen) {
				log.Warn("socket read failed", "err", err)
			}
			m.detach(gen, conn)
			return
		}
		if !m.current(gen) {
			return
		}
		if err = m.dispatcher.Dispatch(ctx, frame); err != nil {
			log.Warn("dropping malformed frame", "err", err)
		}
	}
}

func (m *Manager) attach(gen uint64, conn *websocket.Conn) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.state = Connected
	m.failures = 0
	m.mu.Unlock()

	log.Info("socket connected", "url", m.opts.URL)
	m.notify(Connected)
	return true
}

func (m *Manager) detach(gen uint64, conn *websocket.Conn) {
	m.mu.Lock()
	if gen == m.gen && m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
}

func (m *Manager) recordFailure(gen uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.failures++
	}
	return m.failures
}

func (m *Manager) transition(gen uint64, s State) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.state = s
	m.mu.Unlock()
	m.notify(s)
	return true
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) notify(s State) {
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

func handshakeURL(raw, token string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

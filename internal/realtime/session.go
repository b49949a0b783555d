package realtime

import (
	"context"
	log "log/slog"
	"sync"
)

// Lister 初始加载通知列表的数据源
type Lister interface {
	List(ctx context.Context, pageSize int) ([]Record, error)
}

// TokenHolder 会话切换时需要更新凭据的组件
type TokenHolder interface {
	SetToken(token string)
}

// SessionOptions 会话装配参数
type SessionOptions struct {
	Manager  *Manager
	Ledger   *Ledger
	Notifier *Notifier
	Lister   Lister
	PageSize int
}

// Session 把认证状态与实时连接、通知账本绑定在一起
//
// UI 只拿到 Ledger 和 Notifier，不持有连接引用。
type Session struct {
	manager  *Manager
	ledger   *Ledger
	notifier *Notifier
	lister   Lister
	pageSize int

	mu     sync.Mutex
	active bool
}

func NewSession(opts SessionOptions) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.Notifier == nil {
		opts.Notifier = NewNotifier(nil)
	}
	if opts.Ledger == nil {
		opts.Ledger = NewLedger()
	}
	return &Session{
		manager:  opts.Manager,
		ledger:   opts.Ledger,
		notifier: opts.Notifier,
		lister:   opts.Lister,
		pageSize: opts.PageSize,
	}
}

func (s *Session) Ledger() *Ledger {
	return s.ledger
}

func (s *Session) Notifier() *Notifier {
	return s.notifier
}

// Active 会话是否已开始
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start 登录或恢复会话时调用：挂载监听、初始加载、建立连接
func (s *Session) Start(ctx context.Context, token string) {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	if th, ok := s.lister.(TokenHolder); ok {
		th.SetToken(token)
	}

	BindLedger(s.manager.Dispatcher(), s.ledger, s.notifier)
	s.load(ctx)
	s.manager.OpenForSession(token)
}

// End 注销或认证失效时调用
func (s *Session) End() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.manager.Close()
	s.ledger.Clear()
	if th, ok := s.lister.(TokenHolder); ok {
		th.SetToken("")
	}
}

// OnState 供 ManagerOptions.OnState 使用，连接中断时给出临时提示
func (s *Session) OnState(state State) {
	switch state {
	case Connected:
		log.Info("realtime channel ready")
	case Reconnecting:
		s.notifier.Warning("实时连接已断开，正在重连")
	case GaveUp:
		s.notifier.Error("实时连接失败，请稍后刷新")
	}
}

func (s *Session) load(ctx context.Context) {
	if s.lister == nil {
		return
	}
	list, err := s.lister.List(ctx, s.pageSize)
	if err != nil {
		log.Error("initial notification load failed", "err", err)
		return
	}
	s.ledger.Replace(list)
}

package realtime

import (
	"context"
	"errors"
	log "log/slog"
	"sort"
	"sync"
	"time"
)

const DefaultConfirmTimeout = 5 * time.Second

var (
	// ErrRejected 服务端明确拒绝，此时需要回滚乐观更新
	ErrRejected       = errors.New("服务端拒绝了该操作")
	ErrRecordNotFound = errors.New("通知不存在")
)

// Remote 已读状态的服务端确认通道
type Remote interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

type LedgerOption func(*Ledger)

// WithRemote 设置服务端确认通道，nil 表示仅本地生效
func WithRemote(r Remote) LedgerOption {
	return func(l *Ledger) { l.remote = r }
}

func WithConfirmTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) {
		if d > 0 {
			l.confirmTimeout = d
		}
	}
}

func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// Ledger 通知账本，UI 读取的唯一数据源
//
// records 保持插入顺序（新插入的在前），展示排序只在 Snapshot 中进行。
type Ledger struct {
	mu             sync.Mutex
	records        []*Record
	index          map[string]*Record
	remote         Remote
	confirmTimeout time.Duration
	now            func() time.Time

	listenerMu sync.Mutex
	listeners  map[int]func(Snapshot)
	nextID     int
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		index:          make(map[string]*Record),
		confirmTimeout: DefaultConfirmTimeout,
		now:            time.Now,
		listeners:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Insert 头部插入一条通知，按 id 去重；返回是否为新通知
func (l *Ledger) Insert(r Record) bool {
	if r.ID == "" {
		return false
	}
	l.mu.Lock()
	if _, ok := l.index[r.ID]; ok {
		l.mu.Unlock()
		return false
	}
	rec := l.normalize(r)
	l.records = append([]*Record{rec}, l.records...)
	l.index[rec.ID] = rec
	l.mu.Unlock()

	l.changed()
	return true
}

// Replace 整体替换账本内容，同一 id 只保留第一次出现
func (l *Ledger) Replace(list []Record) {
	records := make([]*Record, 0, len(list))
	index := make(map[string]*Record, len(list))
	l.mu.Lock()
	for _, r := range list {
		if r.ID == "" {
			continue
		}
		if _, ok := index[r.ID]; ok {
			continue
		}
		rec := l.normalize(r)
		records = append(records, rec)
		index[rec.ID] = rec
	}
	l.records = records
	l.index = index
	l.mu.Unlock()

	l.changed()
}

// Clear 清空账本（会话结束时调用）
func (l *Ledger) Clear() {
	l.Replace(nil)
}

// ApplyRead 服务端告知某条通知已读
func (l *Ledger) ApplyRead(id string) bool {
	l.mu.Lock()
	rec, ok := l.index[id]
	if !ok || rec.Read {
		l.mu.Unlock()
		return false
	}
	rec.Read = true
	l.mu.Unlock()

	l.changed()
	return true
}

// ApplyCleared 服务端告知全部已读
func (l *Ledger) ApplyCleared() {
	l.mu.Lock()
	changed := false
	for _, rec := range l.records {
		if !rec.Read {
			rec.Read = true
			changed = true
		}
	}
	l.mu.Unlock()

	if changed {
		l.changed()
	}
}

// MarkRead 乐观地标记已读并请求服务端确认
//
// 只有服务端在超时时间内明确拒绝时才回滚；网络错误或超时保留本地状态。
func (l *Ledger) MarkRead(ctx context.Context, id string) error {
	l.mu.Lock()
	rec, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return ErrRecordNotFound
	}
	if rec.Read {
		l.mu.Unlock()
		return nil
	}
	rec.Read = true
	l.mu.Unlock()
	l.changed()

	if l.remote == nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()
	err := l.remote.MarkRead(cctx, id)
	if err == nil {
		return nil
	}

	if !errors.Is(err, ErrRejected) {
		log.Warn("mark read not confirmed, keeping local state", "id", id, "err", err)
		return err
	}

	log.Warn("mark read rejected by server, reverting", "id", id, "err", err)
	l.mu.Lock()
	reverted := false
	if cur, ok := l.index[id]; ok && cur == rec && cur.Read {
		cur.Read = false
		reverted = true
	}
	l.mu.Unlock()
	if reverted {
		l.changed()
	}
	return err
}

// ClearAll 乐观地全部标记已读并请求服务端确认，回滚策略与 MarkRead 一致
func (l *Ledger) ClearAll(ctx context.Context) error {
	l.mu.Lock()
	flipped := make([]*Record, 0)
	for _, rec := range l.records {
		if !rec.Read {
			rec.Read = true
			flipped = append(flipped, rec)
		}
	}
	l.mu.Unlock()
	if len(flipped) > 0 {
		l.changed()
	}

	if l.remote == nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()
	err := l.remote.MarkAllRead(cctx)
	if err == nil {
		return nil
	}

	if !errors.Is(err, ErrRejected) {
		log.Warn("clear all not confirmed, keeping local state", "count", len(flipped), "err", err)
		return err
	}

	log.Warn("clear all rejected by server, reverting", "count", len(flipped), "err", err)
	l.mu.Lock()
	reverted := 0
	for _, rec := range flipped {
		if cur, ok := l.index[rec.ID]; ok && cur == rec && cur.Read {
			cur.Read = false
			reverted++
		}
	}
	l.mu.Unlock()
	if reverted > 0 {
		l.changed()
	}
	return err
}

// Snapshot 未读在前，同组内按 CreatedAt 倒序
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	records := make([]Record, 0, len(l.records))
	unread := 0
	for _, rec := range l.records {
		records = append(records, *rec)
		if !rec.Read {
			unread++
		}
	}
	l.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Read != records[j].Read {
			return !records[i].Read
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return Snapshot{Records: records, Unread: unread}
}

// UnreadCount 当前未读数
func (l *Ledger) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, rec := range l.records {
		if !rec.Read {
			n++
		}
	}
	return n
}

// OnChange 注册变更监听，返回取消函数
func (l *Ledger) OnChange(fn func(Snapshot)) func() {
	l.listenerMu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.listenerMu.Unlock()

	return func() {
		l.listenerMu.Lock()
		delete(l.listeners, id)
		l.listenerMu.Unlock()
	}
}

func (l *Ledger) changed() {
	l.listenerMu.Lock()
	if len(l.listeners) == 0 {
		l.listenerMu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.listenerMu.Unlock()

	snap := l.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

func (l *Ledger) normalize(r Record) *Record {
	rec := r
	if rec.Kind == "" {
		rec.Kind = KindGeneric
	}
	if rec.Title == "" {
		rec.Title = rec.Kind.DefaultTitle()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}
	return &rec
}

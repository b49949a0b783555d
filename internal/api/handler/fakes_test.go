package handler

import (
	"Folio/internal/api/dto"
	"Folio/internal/service"
	"context"
	"sync"
	"time"
)

type memBus struct {
	mu   sync.Mutex
	subs map[uint64][]chan []byte
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[uint64][]chan []byte)}
}

func (b *memBus) Publish(ctx context.Context, userID uint64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[userID] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, userID uint64) (<-chan []byte, func() error, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[userID] = append(b.subs[userID], ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() error {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[userID]
			for i, c := range list {
				if c == ch {
					b.subs[userID] = append(list[:i], list[i+1:]...)
					break
				}
			}
			close(ch)
		})
		return nil
	}, nil
}

func (b *memBus) subscribers(userID uint64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

type readCall struct {
	userID uint64
	id     string
}

type stubNotificationService struct {
	service.NotificationService

	mu       sync.Mutex
	pending  []*dto.NotificationDTO
	reads    []readCall
	clears   []uint64
	err      error
	created  []*dto.CreateNotificationDTO
	listArgs []int
}

func (s *stubNotificationService) GetPending(ctx context.Context, userID uint64) ([]*dto.NotificationDTO, error) {
	return s.pending, nil
}

func (s *stubNotificationService) GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error) {
	s.mu.Lock()
	s.listArgs = []int{int(userID), page, pageSize}
	s.mu.Unlock()
	return s.pending, s.err
}

func (s *stubNotificationService) GetUnreadCount(ctx context.Context, userID uint64) (*dto.UnreadDTO, error) {
	return &dto.UnreadDTO{UnreadCount: int64(len(s.pending))}, s.err
}

func (s *stubNotificationService) MarkRead(ctx context.Context, userID uint64, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, readCall{userID: userID, id: id})
	return s.err
}

func (s *stubNotificationService) MarkAllRead(ctx context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears = append(s.clears, userID)
	return s.err
}

func (s *stubNotificationService) Create(ctx context.Context, req *dto.CreateNotificationDTO) (*dto.NotificationDTO, error) {
	s.mu.Lock()
	s.created = append(s.created, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &dto.NotificationDTO{ID: "n-created", Type: "generic", Message: req.Message, CreatedAt: time.Now()}, nil
}

func (s *stubNotificationService) readCalls() []readCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]readCall(nil), s.reads...)
}

func (s *stubNotificationService) clearCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clears)
}

type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (r *memRevoker) Revoke(ctx context.Context, signature string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]bool)
	}
	r.revoked[signature] = true
	return nil
}

func (r *memRevoker) IsRevoked(ctx context.Context, signature string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[signature], nil
}

package service

import (
	"Folio/internal/pkg/mongo"
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

type memNotificationRepo struct {
	mu   sync.Mutex
	docs []*mongo.NotificationModel
}

func (r *memNotificationRepo) Create(ctx context.Context, n *mongo.NotificationModel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = primitive.NewObjectID()
	cp := *n
	r.docs = append(r.docs, &cp)
	return nil
}

func (r *memNotificationRepo) List(ctx context.Context, userID uint64, limit, offset int64) ([]*mongo.NotificationModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*mongo.NotificationModel
	for _, d := range r.docs {
		if d.ReceiverID == userID {
			cp := *d
			res = append(res, &cp)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].IsRead != res[j].IsRead {
			return !res[i].IsRead
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if offset >= int64(len(res)) {
		return nil, nil
	}
	res = res[offset:]
	if int64(len(res)) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memNotificationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*mongo.NotificationModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id {
			cp := *d
			return &cp, nil
		}
	}
	return nil, mongoDB.ErrNoDocuments
}

func (r *memNotificationRepo) MarkAsRead(ctx context.Context, userID uint64, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.ID == id && d.ReceiverID == userID && !d.IsRead {
			now := time.Now()
			d.IsRead, d.ReadAt = true, &now
			return true, nil
		}
	}
	return false, nil
}

func (r *memNotificationRepo) MarkAllAsRead(ctx context.Context, userID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.docs {
		if d.ReceiverID == userID && !d.IsRead {
			now := time.Now()
			d.IsRead, d.ReadAt = true, &now
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) GetUnreadCount(ctx context.Context, userID uint64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, d := range r.docs {
		if d.ReceiverID == userID && !d.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.docs[:0]
	var n int64
	for _, d := range r.docs {
		if d.IsRead && d.ReadAt != nil && d.ReadAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, d)
	}
	r.docs = kept
	return n, nil
}

type published struct {
	userID uint64
	frame  []byte
}

type memBus struct {
	mu   sync.Mutex
	sent []published
}

func (b *memBus) Publish(ctx context.Context, userID uint64, payload []byte) error {
	b.mu.Lock()
	b.sent = append(b.sent, published{userID: userID, frame: payload})
	b.mu.Unlock()
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, userID uint64) (<-chan []byte, func() error, error) {
	ch := make(chan []byte)
	return ch, func() error { return nil }, nil
}

func (b *memBus) frames() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.sent...)
}

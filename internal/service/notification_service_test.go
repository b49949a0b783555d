package service

import (
	"Folio/internal/api/dto"
	"Folio/internal/realtime"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestNotificationService() (*notificationServiceImpl, *memNotificationRepo, *memBus) {
	repo := &memNotificationRepo{}
	bus := &memBus{}
	svc := NewNotificationService(repo, bus, 10).(*notificationServiceImpl)
	return svc, repo, bus
}

func decodeFrame(t *testing.T, b []byte) realtime.Envelope {
	t.Helper()
	var env realtime.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return env
}

func TestCreatePersistsAndPushes(t *testing.T) {
	svc, _, bus := newTestNotificationService()
	ctx := context.Background()

	d, err := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 7, Type: "LOAN", Message: "Devuelve el libro"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.Type != "loan" || d.Title != "Loan" || d.Read || d.ID == "" {
		t.Fatalf("dto = %+v", d)
	}

	frames := bus.frames()
	if len(frames) != 1 || frames[0].userID != 7 {
		t.Fatalf("frames = %+v", frames)
	}
	env := decodeFrame(t, frames[0].frame)
	if env.Event != realtime.EventNewNotification {
		t.Fatalf("event = %s", env.Event)
	}
	r, err := realtime.DecodeNotification(env.Data)
	if err != nil || r.ID != d.ID || r.Kind != realtime.KindLoan {
		t.Fatalf("pushed record = %+v, %v", r, err)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _, bus := newTestNotificationService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 7, Type: "reservation", Message: "x"}); !errors.Is(err, ErrNotificationType) {
		t.Fatalf("unknown type err = %v", err)
	}
	if _, err := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 7, Message: "  "}); !errors.Is(err, ErrParamInvalid) {
		t.Fatalf("empty message err = %v", err)
	}
	if len(bus.frames()) != 0 {
		t.Fatal("rejected notifications were pushed")
	}
}

func TestListOrdersUnreadFirst(t *testing.T) {
	svc, _, _ := newTestNotificationService()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		d, _ := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "m"})
		ids = append(ids, d.ID)
	}
	_, _ = svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 2, Message: "other user"})
	if err := svc.MarkRead(ctx, 1, ids[2]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	list, err := svc.GetNotificationList(ctx, 1, 1, 10)
	if err != nil {
		t.Fatalf("GetNotificationList: %v", err)
	}
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	want := []string{ids[1], ids[0], ids[2]}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	unread, _ := svc.GetUnreadCount(ctx, 1)
	if unread.UnreadCount != 2 {
		t.Fatalf("UnreadCount = %d, want 2", unread.UnreadCount)
	}
}

func TestMarkReadRules(t *testing.T) {
	svc, _, bus := newTestNotificationService()
	ctx := context.Background()
	d, _ := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "m"})

	if err := svc.MarkRead(ctx, 1, "not-an-id"); !errors.Is(err, ErrParamInvalid) {
		t.Fatalf("bad id err = %v", err)
	}
	if err := svc.MarkRead(ctx, 1, primitive.NewObjectID().Hex()); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("missing err = %v", err)
	}
	if err := svc.MarkRead(ctx, 2, d.ID); !errors.Is(err, UnauthorizedError) {
		t.Fatalf("foreign err = %v", err)
	}

	before := len(bus.frames())
	if err := svc.MarkRead(ctx, 1, d.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := svc.MarkRead(ctx, 1, d.ID); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}
	frames := bus.frames()[before:]
	if len(frames) != 1 {
		t.Fatalf("update frames = %d, want 1", len(frames))
	}
	env := decodeFrame(t, frames[0].frame)
	var p realtime.ReadPayload
	_ = json.Unmarshal(env.Data, &p)
	if env.Event != realtime.EventNotificationUpdate || p.ID != d.ID {
		t.Fatalf("frame = %s %+v", env.Event, p)
	}
}

func TestMarkAllReadPushesCleared(t *testing.T) {
	svc, _, bus := newTestNotificationService()
	ctx := context.Background()
	_, _ = svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "a"})
	_, _ = svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "b"})

	if err := svc.MarkAllRead(ctx, 1); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	unread, _ := svc.GetUnreadCount(ctx, 1)
	if unread.UnreadCount != 0 {
		t.Fatalf("UnreadCount = %d", unread.UnreadCount)
	}
	frames := bus.frames()
	if env := decodeFrame(t, frames[len(frames)-1].frame); env.Event != realtime.EventNotificationsCleared {
		t.Fatalf("last event = %s", env.Event)
	}
}

func TestRelayOnlyPassthroughEvents(t *testing.T) {
	svc, _, bus := newTestNotificationService()
	ctx := context.Background()

	if err := svc.Relay(ctx, 3, realtime.EventChatMessage, json.RawMessage(`{"text":"hola"}`)); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if err := svc.Relay(ctx, 3, realtime.EventNewNotification, json.RawMessage(`{}`)); !errors.Is(err, ErrEventNotRelayable) {
		t.Fatalf("Relay(notification) err = %v", err)
	}
	frames := bus.frames()
	if len(frames) != 1 || decodeFrame(t, frames[0].frame).Event != realtime.EventChatMessage {
		t.Fatalf("frames = %+v", frames)
	}
}

func TestPurgeRead(t *testing.T) {
	svc, repo, _ := newTestNotificationService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "a"})
	_, _ = svc.Create(ctx, &dto.CreateNotificationDTO{UserID: 1, Message: "b"})
	_ = svc.MarkRead(ctx, 1, a.ID)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err := svc.PurgeRead(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("PurgeRead = %d, %v", n, err)
	}
	if len(repo.docs) != 1 {
		t.Fatalf("docs left = %d, want 1", len(repo.docs))
	}
}

package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

type recordingSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *recordingSink) Show(a Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	b, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func TestDispatcherRegisterIsIdempotent(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	fn := func(ctx context.Context, data json.RawMessage) error {
		calls++
		return nil
	}
	if !d.Register(EventChatMessage, "chat-window", fn) {
		t.Fatal("first Register returned false")
	}
	if d.Register(EventChatMessage, "chat-window", fn) {
		t.Fatal("second Register returned true")
	}
	if err := d.Dispatch(context.Background(), frame(t, EventChatMessage, map[string]string{"text": "hola"})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	d.Unregister(EventChatMessage, "chat-window")
	_ = d.Dispatch(context.Background(), frame(t, EventChatMessage, nil))
	if calls != 1 {
		t.Fatal("handler called after Unregister")
	}
}

func TestDispatcherIsolatesFailingHandlers(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Register(EventTicketUpdate, "panics", func(ctx context.Context, data json.RawMessage) error {
		order = append(order, "panics")
		panic("boom")
	})
	d.Register(EventTicketUpdate, "fails", func(ctx context.Context, data json.RawMessage) error {
		order = append(order, "fails")
		return errors.New("bad payload")
	})
	d.Register(EventTicketUpdate, "ok", func(ctx context.Context, data json.RawMessage) error {
		order = append(order, "ok")
		return nil
	})

	if err := d.Dispatch(context.Background(), frame(t, EventTicketUpdate, map[string]int{"ticket": 7})); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !equalIDs(order, []string{"panics", "fails", "ok"}) {
		t.Fatalf("handler order = %v", order)
	}
}

func TestDispatcherRejectsMalformedFrames(t *testing.T) {
	d := NewDispatcher()
	for _, raw := range []string{`not json`, `{"data":{}}`, `[]`} {
		if err := d.Dispatch(context.Background(), []byte(raw)); !errors.Is(err, ErrMalformedFrame) {
			t.Fatalf("Dispatch(%q) err = %v, want ErrMalformedFrame", raw, err)
		}
	}
}

func TestBindLedgerNewNotification(t *testing.T) {
	d := NewDispatcher()
	l := NewLedger()
	sink := &recordingSink{}
	BindLedger(d, l, NewNotifier(sink))
	BindLedger(d, l, NewNotifier(sink))

	payload := map[string]any{"id": "n1", "type": "loan", "message": "Devuelve el libro", "read": true}
	_ = d.Dispatch(context.Background(), frame(t, EventNewNotification, payload))
	_ = d.Dispatch(context.Background(), frame(t, EventNewNotification, payload))

	snap := l.Snapshot()
	if len(snap.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(snap.Records))
	}
	r := snap.Records[0]
	if r.Read || r.Kind != KindLoan || r.Title != "Loan" {
		t.Fatalf("record = %+v", r)
	}
	if snap.Unread != 1 {
		t.Fatalf("Unread = %d, want 1", snap.Unread)
	}
	if sink.count() != 1 {
		t.Fatalf("alerts = %d, want 1 (duplicates must not alert)", sink.count())
	}
}

func TestBindLedgerDropsMalformedNotification(t *testing.T) {
	d := NewDispatcher()
	l := NewLedger()
	BindLedger(d, l, nil)

	bad := []map[string]any{
		{"type": "loan", "message": "sin id"},
		{"id": "n1", "type": "reservation", "message": "tipo desconocido"},
		{"id": "n2", "type": "chat"},
	}
	for _, p := range bad {
		_ = d.Dispatch(context.Background(), frame(t, EventNewNotification, p))
	}
	_ = d.Dispatch(context.Background(), frame(t, EventNewNotification, "just a string"))

	if got := len(l.Snapshot().Records); got != 0 {
		t.Fatalf("records = %d, want 0", got)
	}
}

func TestBindLedgerPendingReplacesWithoutAlerts(t *testing.T) {
	d := NewDispatcher()
	l := NewLedger()
	sink := &recordingSink{}
	BindLedger(d, l, NewNotifier(sink))
	l.Insert(Record{ID: "old"})

	pending := []map[string]any{
		{"id": "n1", "type": "loan", "message": "a", "read": true, "createdAt": "2026-03-01T09:00:00Z"},
		{"id": "n2", "type": "chat", "message": "b", "read": true, "createdAt": "2026-03-01T10:00:00Z"},
		{"id": "n2", "type": "chat", "message": "dup", "read": true, "createdAt": "2026-03-01T10:00:00Z"},
		{"id": "", "message": "bad"},
	}
	_ = d.Dispatch(context.Background(), frame(t, EventPendingNotifications, pending))

	snap := l.Snapshot()
	if got := ids(snap); !equalIDs(got, []string{"n2", "n1"}) {
		t.Fatalf("Snapshot ids = %v, want [n2 n1]", got)
	}
	if snap.Unread != 0 {
		t.Fatalf("Unread = %d, want 0", snap.Unread)
	}
	if sink.count() != 0 {
		t.Fatalf("bulk load posted %d alerts, want 0", sink.count())
	}
}

func TestBindLedgerReadAndCleared(t *testing.T) {
	d := NewDispatcher()
	l := NewLedger()
	BindLedger(d, l, nil)
	l.Insert(Record{ID: "n1"})
	l.Insert(Record{ID: "n2"})
	l.Insert(Record{ID: "n3"})

	_ = d.Dispatch(context.Background(), frame(t, EventNotificationUpdate, map[string]string{"id": "n1"}))
	_ = d.Dispatch(context.Background(), frame(t, EventNotificationUpdate, map[string]string{"id": "n1"}))
	_ = d.Dispatch(context.Background(), frame(t, EventNotificationUpdate, map[string]string{}))
	if got := l.UnreadCount(); got != 2 {
		t.Fatalf("UnreadCount = %d, want 2", got)
	}

	_ = d.Dispatch(context.Background(), []byte(`{"event":"notifications_cleared"}`))
	if got := l.UnreadCount(); got != 0 {
		t.Fatalf("UnreadCount = %d, want 0", got)
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{"": KindGeneric, "LOAN": KindLoan, " chat ": KindChat, "alert": KindAlert, "generic": KindGeneric}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("reservation"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("ParseKind(reservation) err = %v", err)
	}
}

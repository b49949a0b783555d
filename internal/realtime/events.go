package realtime

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// 服务端推送事件
const (
	EventNewNotification      = "nueva_notificacion"
	EventPendingNotifications = "notificaciones_pendientes"
	EventNotificationUpdate   = "notification_update"
	EventNotificationsCleared = "notifications_cleared"

	EventChatMessage  = "nuevo_mensaje"
	EventTicketUpdate = "ticket_actualizado"
	EventTyping       = "usuario_escribiendo"
	EventPresence     = "estado_usuario"
)

// 客户端回执
const (
	EventAckMarkRead = "marcar_leida"
	EventAckClearAll = "limpiar_notificaciones"
)

const ledgerHandlerName = "ledger"

var validate = validator.New()

// NotificationPayload 通知事件的载荷
type NotificationPayload struct {
	ID        string     `json:"id" validate:"required"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message" validate:"required"`
	Read      bool       `json:"read"`
	CreatedAt *time.Time `json:"createdAt"`
}

// ReadPayload 已读回执载荷
type ReadPayload struct {
	ID string `json:"id" validate:"required"`
}

// ToRecord 在进入账本前完成校验
func (p *NotificationPayload) ToRecord() (Record, error) {
	if err := validate.Struct(p); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	kind, err := ParseKind(p.Type)
	if err != nil {
		return Record{}, err
	}
	r := Record{
		ID:      p.ID,
		Kind:    kind,
		Title:   p.Title,
		Message: p.Message,
		Read:    p.Read,
	}
	if p.CreatedAt != nil {
		r.CreatedAt = *p.CreatedAt
	}
	return r, nil
}

// DecodeNotification 解析单条通知
func DecodeNotification(data json.RawMessage) (Record, error) {
	var p NotificationPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return p.ToRecord()
}

// DecodeNotificationList 解析批量通知，格式错误的条目被单独丢弃
func DecodeNotificationList(data json.RawMessage) ([]Record, error) {
	var list []NotificationPayload
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	res := make([]Record, 0, len(list))
	for i := range list {
		r, err := list[i].ToRecord()
		if err != nil {
			log.Warn("dropping malformed pending notification", "index", i, "err", err)
			continue
		}
		res = append(res, r)
	}
	return res, nil
}

// BindLedger 将通知相关事件挂到账本上；notifier 为 nil 时不弹出提示
func BindLedger(d *Dispatcher, ledger *Ledger, notifier *Notifier) {
	d.Register(EventNewNotification, ledgerHandlerName, func(ctx context.Context, data json.RawMessage) error {
		r, err := DecodeNotification(data)
		if err != nil {
			return err
		}
		r.Read = false
		if ledger.Insert(r) && notifier != nil {
			title := r.Title
			if title == "" {
				title = r.Kind.DefaultTitle()
			}
			notifier.Info(title + ": " + r.Message)
		}
		return nil
	})

	d.Register(EventPendingNotifications, ledgerHandlerName, func(ctx context.Context, data json.RawMessage) error {
		list, err := DecodeNotificationList(data)
		if err != nil {
			return err
		}
		ledger.Replace(list)
		return nil
	})

	d.Register(EventNotificationUpdate, ledgerHandlerName, func(ctx context.Context, data json.RawMessage) error {
		var p ReadPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if err := validate.Struct(&p); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		ledger.ApplyRead(p.ID)
		return nil
	})

	d.Register(EventNotificationsCleared, ledgerHandlerName, func(ctx context.Context, data json.RawMessage) error {
		ledger.ApplyCleared()
		return nil
	})
}

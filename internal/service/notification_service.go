package service

import (
	"Folio/internal/api/dto"
	"Folio/internal/pkg/mongo"
	"Folio/internal/realtime"
	"context"
	"errors"
	log "log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
)

const maxPageSize = 100

// 允许通过 relay 透传给客户端的事件
var relayableEvents = map[string]struct{}{
	realtime.EventChatMessage:  {},
	realtime.EventTicketUpdate: {},
	realtime.EventTyping:       {},
	realtime.EventPresence:     {},
}

type NotificationService interface {
	Create(ctx context.Context, req *dto.CreateNotificationDTO) (*dto.NotificationDTO, error)
	GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error)
	GetPending(ctx context.Context, userID uint64) ([]*dto.NotificationDTO, error)
	GetUnreadCount(ctx context.Context, userID uint64) (*dto.UnreadDTO, error)
	MarkRead(ctx context.Context, userID uint64, id string) error
	MarkAllRead(ctx context.Context, userID uint64) error
	Relay(ctx context.Context, userID uint64, event string, data json.RawMessage) error
	PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error)
}

type notificationServiceImpl struct {
	repo     mongo.NotificationRepo
	bus      NotifyBus
	pageSize int
	now      func() time.Time
}

func NewNotificationService(repo mongo.NotificationRepo, bus NotifyBus, pageSize int) NotificationService {
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = 50
	}
	return &notificationServiceImpl{
		repo:     repo,
		bus:      bus,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Create 持久化通知并推送 nueva_notificacion
func (s *notificationServiceImpl) Create(ctx context.Context, req *dto.CreateNotificationDTO) (*dto.NotificationDTO, error) {
	if req.UserID == 0 || strings.TrimSpace(req.Message) == "" {
		return nil, ErrParamInvalid
	}
	kind, err := realtime.ParseKind(req.Type)
	if err != nil {
		return nil, ErrNotificationType
	}
	title := req.Title
	if title == "" {
		title = kind.DefaultTitle()
	}

	m := &mongo.NotificationModel{
		ReceiverID: req.UserID,
		Type:       string(kind),
		Title:      title,
		Message:    req.Message,
		Payload:    req.Payload,
		CreatedAt:  s.now().UTC(),
	}
	if err = s.repo.Create(ctx, m); err != nil {
		return nil, err
	}

	d := toNotificationDTO(m)
	s.publish(ctx, req.UserID, realtime.EventNewNotification, d)
	return d, nil
}

// GetNotificationList 未读在前，同组内按时间倒序
func (s *notificationServiceImpl) GetNotificationList(ctx context.Context, userID uint64, page, pageSize int) ([]*dto.NotificationDTO, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = s.pageSize
	}

	list, err := s.repo.List(ctx, userID, int64(pageSize), int64((page-1)*pageSize))
	if err != nil {
		return nil, err
	}
	res := make([]*dto.NotificationDTO, 0, len(list))
	for _, m := range list {
		res = append(res, toNotificationDTO(m))
	}
	return res, nil
}

// GetPending 连接建立时下发的首屏通知
func (s *notificationServiceImpl) GetPending(ctx context.Context, userID uint64) ([]*dto.NotificationDTO, error) {
	return s.GetNotificationList(ctx, userID, 1, s.pageSize)
}

func (s *notificationServiceImpl) GetUnreadCount(ctx context.Context, userID uint64) (*dto.UnreadDTO, error) {
	count, err := s.repo.GetUnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &dto.UnreadDTO{UnreadCount: count}, nil
}

// MarkRead 标记单条已读，并把状态同步到该用户的其他连接
func (s *notificationServiceImpl) MarkRead(ctx context.Context, userID uint64, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrParamInvalid
	}

	notice, err := s.repo.GetByID(ctx, objectID)
	if err != nil {
		if errors.Is(err, mongoDB.ErrNoDocuments) {
			return ErrNotificationNotFound
		}
		return err
	}
	if notice.ReceiverID != userID {
		return UnauthorizedError
	}
	if notice.IsRead {
		return nil
	}

	changed, err := s.repo.MarkAsRead(ctx, userID, objectID)
	if err != nil {
		return err
	}
	if changed {
		s.publish(ctx, userID, realtime.EventNotificationUpdate, realtime.ReadPayload{ID: id})
	}
	return nil
}

// MarkAllRead 一键已读
func (s *notificationServiceImpl) MarkAllRead(ctx context.Context, userID uint64) error {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "notifications cleared", "userID", userID, "count", n)
	s.publish(ctx, userID, realtime.EventNotificationsCleared, nil)
	return nil
}

// Relay 透传聊天、工单等非通知事件
func (s *notificationServiceImpl) Relay(ctx context.Context, userID uint64, event string, data json.RawMessage) error {
	if _, ok := relayableEvents[event]; !ok {
		return ErrEventNotRelayable
	}
	if userID == 0 {
		return ErrParamInvalid
	}
	frame, err := json.Marshal(realtime.Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, userID, frame)
}

// PurgeRead 删除已读超过 olderThan 的通知
func (s *notificationServiceImpl) PurgeRead(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.DeleteReadBefore(ctx, s.now().Add(-olderThan))
}

// publish 推送失败只记录日志，客户端下次加载时会拿到最新状态
func (s *notificationServiceImpl) publish(ctx context.Context, userID uint64, event string, data any) {
	frame, err := json.Marshal(dto.WsEnvelope{Event: event, Data: data})
	if err != nil {
		log.ErrorContext(ctx, "marshal push frame failed", "event", event, "err", err)
		return
	}
	if err = s.bus.Publish(ctx, userID, frame); err != nil {
		log.ErrorContext(ctx, "push notification failed", "userID", userID, "event", event, "err", err)
	}
}

func toNotificationDTO(m *mongo.NotificationModel) *dto.NotificationDTO {
	d := &dto.NotificationDTO{}
	_ = copier.Copy(d, m)
	d.ID = m.ID.Hex()
	d.Read = m.IsRead
	d.CreatedAt = m.CreatedAt.UTC()
	return d
}

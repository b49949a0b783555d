package kafka

import (
	"Folio/internal/api/dto"
	"Folio/internal/service"
	"context"
	"errors"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
)

// LibraryEvent 业务系统投递的通知事件（借阅到期、工单变更等）
type LibraryEvent struct {
	UserID  uint64         `json:"userId"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload"`
}

// LibraryEventHandler 把业务事件落库为通知并推送给在线用户
type LibraryEventHandler struct {
	notificationService service.NotificationService
}

func NewLibraryEventHandler(ns service.NotificationService) *LibraryEventHandler {
	return &LibraryEventHandler{notificationService: ns}
}

func (s *LibraryEventHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("library event consumer setup")
	return nil
}

func (s *LibraryEventHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("library event consumer cleanup")
	return nil
}

func (s *LibraryEventHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("library event consume claim", "topic", claim.Topic(), "partition", claim.Partition())
	return pullMessageBatch(session, claim, s.logic)
}

func (s *LibraryEventHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event LibraryEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return backoff.Permanent(err)
	}

	_, err := s.notificationService.Create(ctx, &dto.CreateNotificationDTO{
		UserID:  event.UserID,
		Type:    event.Type,
		Title:   event.Title,
		Message: event.Message,
		Payload: event.Payload,
	})
	if errors.Is(err, service.ErrParamInvalid) || errors.Is(err, service.ErrNotificationType) {
		return backoff.Permanent(err)
	}
	return err
}

package kafka

import (
	"Folio/internal/service"
	"context"
	log "log/slog"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// RelayEvent 聊天、工单、在线状态等实时事件，原样转发给目标用户
type RelayEvent struct {
	UserID uint64          `json:"userId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

type RelayHandler struct {
	notificationService service.NotificationService
}

func NewRelayHandler(ns service.NotificationService) *RelayHandler {
	return &RelayHandler{notificationService: ns}
}

func (s *RelayHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("relay consumer setup")
	return nil
}

func (s *RelayHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("relay consumer cleanup")
	return nil
}

func (s *RelayHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	log.Info("relay consume claim", "topic", claim.Topic(), "partition", claim.Partition())
	return pullMessageBatch(session, claim, s.logic)
}

func (s *RelayHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event RelayEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return backoff.Permanent(errors.Wrap(err, "decode relay event"))
	}

	err := s.notificationService.Relay(ctx, event.UserID, event.Event, event.Data)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrEventNotRelayable), errors.Is(err, service.ErrParamInvalid):
		return backoff.Permanent(errors.WithMessagef(err, "relay %q", event.Event))
	default:
		return errors.Wrapf(err, "relay %q to user %d", event.Event, event.UserID)
	}
}

package job

import (
	"Folio/internal/pkg/logger"
	"Folio/internal/service"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

const cleanupTimeout = 5 * time.Minute

// NotificationCleanupJob 定期删除超过保留期的已读通知
type NotificationCleanupJob struct {
	notificationSvc service.NotificationService
	retention       time.Duration
}

func NewNotificationCleanupJob(notificationSvc service.NotificationService, retentionDays int) *NotificationCleanupJob {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &NotificationCleanupJob{
		notificationSvc: notificationSvc,
		retention:       time.Duration(retentionDays) * 24 * time.Hour,
	}
}

func (s *NotificationCleanupJob) Run() {
	ctx, cancel := context.WithTimeout(logger.WithTraceID(context.Background(), "job-"+uuid.NewString()), cleanupTimeout)
	defer cancel()

	deleted, err := s.notificationSvc.PurgeRead(ctx, s.retention)
	if err != nil {
		log.ErrorContext(ctx, "purge read notifications error", "err", err)
		return
	}
	log.InfoContext(ctx, "purge read notifications done", "deleted", deleted, "retention", s.retention)
}

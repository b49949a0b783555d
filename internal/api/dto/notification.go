package dto

import "time"

// NotificationDTO 通知返回对象，与实时推送的载荷一致
type NotificationDTO struct {
	ID        string         `json:"id" copier:"-"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"createdAt"`
}

// UnreadDTO 未读数返回
type UnreadDTO struct {
	UnreadCount int64 `json:"unread_count"`
}

// ReadDTO 单条已读
type ReadDTO struct {
	ID string `json:"id" binding:"required"`
}

// CreateNotificationDTO 管理员或内部事件创建通知
type CreateNotificationDTO struct {
	UserID  uint64         `json:"user_id" binding:"required"`
	Type    string         `json:"type"`
	Title   string         `json:"title" validate:"max=80"`
	Message string         `json:"message" binding:"required" validate:"max=500"`
	Payload map[string]any `json:"payload"`
}

// WsEnvelope 推送帧
type WsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

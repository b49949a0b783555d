package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationModel 用户通知
type NotificationModel struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ReceiverID uint64             `bson:"receiver_id" json:"receiverId"`
	Type       string             `bson:"type" json:"type"` // loan / chat / alert / generic
	Title      string             `bson:"title" json:"title"`
	Message    string             `bson:"message" json:"message"`
	Payload    map[string]any     `bson:"payload,omitempty" json:"payload,omitempty"`
	IsRead     bool               `bson:"is_read" json:"read"`
	ReadAt     *time.Time         `bson:"read_at,omitempty" json:"readAt,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
}

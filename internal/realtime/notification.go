package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/mfigueroa/stockroom-backend/pkg/enums"
)

// Notification is the in-memory payload pushed over live connections.
// It is never persisted; bounded histories exist only for reconnect replay.
type Notification struct {
	ID         uuid.UUID              `json:"id"`
	Type       enums.NotificationType `json:"type"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	UserID     *uuid.UUID             `json:"userId,omitempty"`
	EntityID   *uuid.UUID             `json:"entityId,omitempty"`
	EntityType string                 `json:"entityType,omitempty"`
	Read       bool                   `json:"read"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// NewNotification stamps an id and creation time on the provided fields.
func NewNotification(kind enums.NotificationType, title, message string) Notification {
	return Notification{
		ID:        uuid.New(),
		Type:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
}

// WithUser scopes the notification to a single recipient.
func (n Notification) WithUser(userID uuid.UUID) Notification {
	n.UserID = &userID
	return n
}

// WithEntity attaches the subject entity for client-side linking.
func (n Notification) WithEntity(entityType string, entityID uuid.UUID) Notification {
	n.EntityType = entityType
	n.EntityID = &entityID
	return n
}

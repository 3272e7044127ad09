package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType names an activity on a session.
type SessionEventType string

const (
	SessionEventPublished SessionEventType = "session.published"
	SessionEventDeleted   SessionEventType = "session.deleted"
	SessionEventLiked     SessionEventType = "session.liked"
	SessionEventUnliked   SessionEventType = "session.unliked"
)

// SessionEvent is the payload published to the event bus.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	SessionID  uuid.UUID        `json:"session_id"`
	UserID     uuid.UUID        `json:"user_id"`
	OccurredAt time.Time        `json:"occurred_at"`
}

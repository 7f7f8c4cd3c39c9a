package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every published portal event shares
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Event types published by the portal
const (
	EventTypeQuizCompleted    = "quiz.completed"
	EventTypePointsAwarded    = "profile.points_awarded"
	EventTypeRankChanged      = "profile.rank_changed"
	EventTypeBadgeAwarded     = "profile.badge_awarded"
	EventTypeProgressReset    = "profile.progress_reset"
	EventTypeTaskReminderDue  = "task.reminder.due"
	EventTypeVideoCompleted   = "media.video.completed"
	EventTypeVideoFailed      = "media.video.failed"
	EventTypeLiveSessionEnded = "live.session.ended"
)

const (
	eventSource  = "portal-service"
	eventVersion = "1.0"
)

// EventPublisher publishes portal events to the configured broker
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// NewEvent builds the envelope for an event of the given type
func NewEvent(eventType string, data interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    eventSource,
		Version:   eventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

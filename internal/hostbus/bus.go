// Package hostbus provides the host-internal event bus. It carries app
// lifecycle events between the shell's managers; it is not exposed to apps.
package hostbus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Subjects published on the host bus.
const (
	SubjectAppStarted = "deskd.app.started"
	SubjectAppStopped = "deskd.app.stopped"
)

// Event represents a message on the host bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"` // component that produced the event
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(eventType, source string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AppID extracts the app_id data field, if present.
func (e *Event) AppID() string {
	if e.Data == nil {
		return ""
	}
	if id, ok := e.Data["app_id"].(string); ok {
		return id
	}
	return ""
}

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// Bus is the host event bus interface.
type Bus interface {
	// Publish sends an event to a subject.
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern. Patterns use
	// NATS-style wildcards: * matches one token, > matches the rest.
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close closes the connection.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}

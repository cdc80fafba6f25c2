// Package notifications implements the shell notification center. Posted
// notifications are broadcast on the notify namespace so any subscribed
// surface (tray, overlay) can render them.
package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/events"
)

// Notification is one posted notification.
type Notification struct {
	ID        string    `json:"id"`
	AppID     string    `json:"app_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service holds the live notification list and publishes change events.
type Service struct {
	mu    sync.RWMutex
	items map[string]*Notification
	order []string // notification ids in post order

	emitter *events.Emitter
	logger  *logger.Logger
}

// NewService creates the notification service publishing on the given
// emitter (bound to the notify namespace).
func NewService(emitter *events.Emitter, log *logger.Logger) *Service {
	return &Service{
		items:   make(map[string]*Notification),
		emitter: emitter,
		logger:  log.WithFields(zap.String("component", "notifications")),
	}
}

// Send posts a notification on behalf of an app and notifies subscribers.
func (s *Service) Send(appID, title, body string) *Notification {
	n := &Notification{
		ID:        uuid.New().String(),
		AppID:     appID,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.items[n.ID] = n
	s.order = append(s.order, n.ID)
	s.mu.Unlock()

	s.emitter.Notify("posted", n)

	s.logger.Debug("Notification posted",
		zap.String("notification_id", n.ID),
		zap.String("app_id", appID))
	return n
}

// List returns the app's own live notifications, oldest first. Results are
// scoped by poster so listing needs no cross-app permission.
func (s *Service) List(appID string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notification, 0)
	for _, id := range s.order {
		if n, ok := s.items[id]; ok && n.AppID == appID {
			out = append(out, n)
		}
	}
	return out
}

// Dismiss removes a notification. Only the posting app may dismiss it; the
// return value reports whether anything was removed.
func (s *Service) Dismiss(appID, notificationID string) bool {
	s.mu.Lock()
	n, ok := s.items[notificationID]
	if !ok || n.AppID != appID {
		s.mu.Unlock()
		return false
	}
	delete(s.items, notificationID)
	for i, id := range s.order {
		if id == notificationID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.emitter.Notify("dismissed", map[string]string{"id": notificationID})
	return true
}

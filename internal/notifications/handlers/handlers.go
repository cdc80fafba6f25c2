// Package handlers registers the notify namespace on the command registry.
package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/notifications"
	"github.com/deskd/deskd/pkg/ipc"
)

// Handlers contains the notify namespace command handlers.
type Handlers struct {
	service *notifications.Service
	logger  *logger.Logger
}

// NewHandlers creates the notification handlers.
func NewHandlers(svc *notifications.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "notify_handlers")),
	}
}

// RegisterHandlers registers all notify commands with the registry.
// list and dismiss operate only on the caller's own notifications, so the
// post permission covers the namespace.
func (h *Handlers) RegisterHandlers(reg *command.Registry) {
	reg.MustRegister("notify", "send", ipc.PermNotifyPost, h.Send)
	reg.MustRegister("notify", "list", "", h.List)
	reg.MustRegister("notify", "dismiss", ipc.PermNotifyPost, h.Dismiss)
}

// SendRequest is the payload for notify/send.
type SendRequest struct {
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Send handles notify/send.
func (h *Handlers) Send(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req SendRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Title == "" {
		return nil, errors.Validation("title", "title is required")
	}

	n := h.service.Send(inv.AppID, req.Title, req.Body)
	return n, nil
}

// List handles notify/list.
func (h *Handlers) List(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	items := h.service.List(inv.AppID)
	return map[string]interface{}{
		"notifications": items,
		"total":         len(items),
	}, nil
}

// DismissRequest is the payload for notify/dismiss.
type DismissRequest struct {
	ID string `json:"id"`
}

// Dismiss handles notify/dismiss.
func (h *Handlers) Dismiss(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req DismissRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.ID == "" {
		return nil, errors.Validation("id", "id is required")
	}

	dismissed := h.service.Dismiss(inv.AppID, req.ID)
	if !dismissed {
		h.logger.Debug("Dismiss of unknown notification",
			zap.String("app_id", inv.AppID),
			zap.String("notification_id", req.ID))
	}
	return map[string]interface{}{"dismissed": dismissed}, nil
}

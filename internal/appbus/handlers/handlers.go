// Package handlers registers the appbus namespace on the command registry.
package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/appbus"
	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/pkg/ipc"
)

// Handlers contains the appbus namespace command handlers. The owner/caller
// identity passed to the manager always comes from the invocation context,
// never from the payload.
type Handlers struct {
	manager *appbus.Manager
	logger  *logger.Logger
}

// NewHandlers creates the appbus handlers.
func NewHandlers(manager *appbus.Manager, log *logger.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		logger:  log.WithFields(zap.String("component", "appbus_handlers")),
	}
}

// RegisterHandlers registers all appbus commands with the registry.
// Service existence is public, so listServices carries no permission;
// exposing and connecting are gated.
func (h *Handlers) RegisterHandlers(reg *command.Registry) {
	reg.MustRegister("appbus", "registerService", ipc.PermAppBusExpose, h.RegisterService)
	reg.MustRegister("appbus", "unregisterService", ipc.PermAppBusExpose, h.UnregisterService)
	reg.MustRegister("appbus", "listServices", "", h.ListServices)
	reg.MustRegister("appbus", "connect", ipc.PermAppBusConnect, h.Connect)
}

// RegisterServiceRequest is the payload for appbus/registerService.
type RegisterServiceRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	AllowedClients []string `json:"allowed_clients,omitempty"`
}

// RegisterService handles appbus/registerService.
func (h *Handlers) RegisterService(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req RegisterServiceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Name == "" {
		return nil, errors.Validation("name", "name is required")
	}

	if ipcErr := h.manager.Register(inv.AppID, req.Name, appbus.RegisterOptions{
		Description:    req.Description,
		AllowedClients: req.AllowedClients,
	}); ipcErr != nil {
		return nil, ipcErr
	}
	return map[string]interface{}{"registered": true}, nil
}

// UnregisterServiceRequest is the payload for appbus/unregisterService.
type UnregisterServiceRequest struct {
	Name string `json:"name"`
}

// UnregisterService handles appbus/unregisterService. Idempotent.
func (h *Handlers) UnregisterService(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req UnregisterServiceRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Name == "" {
		return nil, errors.Validation("name", "name is required")
	}

	removed := h.manager.Unregister(inv.AppID, req.Name)
	return map[string]interface{}{"removed": removed}, nil
}

// ListServicesRequest is the payload for appbus/listServices. An empty
// app_id lists the whole directory.
type ListServicesRequest struct {
	AppID string `json:"app_id,omitempty"`
}

// ListServices handles appbus/listServices.
func (h *Handlers) ListServices(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req ListServicesRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, errors.BadRequest("invalid payload: " + err.Error())
		}
	}

	var services []appbus.ServiceInfo
	if req.AppID != "" {
		services = h.manager.ByApp(req.AppID)
	} else {
		services = h.manager.List()
	}
	if services == nil {
		services = []appbus.ServiceInfo{}
	}
	return map[string]interface{}{
		"services": services,
		"total":    len(services),
	}, nil
}

// ConnectRequest is the payload for appbus/connect.
type ConnectRequest struct {
	AppID   string `json:"app_id"`
	Service string `json:"service"`
}

// Connect handles appbus/connect. Broker failures (not found, not allowed)
// are returned as tagged errors: they are a normal branch of a connect
// attempt and the frontend must be able to tell them apart.
func (h *Handlers) Connect(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req ConnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.AppID == "" || req.Service == "" {
		return nil, errors.Validation("service", "app_id and service are required")
	}

	result, ipcErr := h.manager.Connect(ctx, inv.AppID, req.AppID, req.Service)
	if ipcErr != nil {
		return nil, ipcErr
	}

	h.logger.Debug("Connect brokered",
		zap.String("caller", inv.AppID),
		zap.String("target", req.AppID),
		zap.String("service", req.Service))
	return result, nil
}

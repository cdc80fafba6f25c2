// Package handlers registers the opener namespace on the command registry.
package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/opener"
	"github.com/deskd/deskd/pkg/ipc"
)

// Handlers contains the opener namespace command handlers.
type Handlers struct {
	service *opener.Service
	logger  *logger.Logger
}

// NewHandlers creates the opener handlers.
func NewHandlers(svc *opener.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "opener_handlers")),
	}
}

// RegisterHandlers registers all opener commands with the registry.
// get is read-only discovery: the association table is user-level, not
// app-scoped, so it carries no permission.
func (h *Handlers) RegisterHandlers(reg *command.Registry) {
	reg.MustRegister("opener", "open", ipc.PermOpenerOpen, h.Open)
	reg.MustRegister("opener", "get", "", h.Get)
	reg.MustRegister("opener", "setDefault", ipc.PermOpenerManage, h.SetDefault)
}

// OpenRequest is the payload for opener/open.
type OpenRequest struct {
	Path string `json:"path"`
}

// Open handles opener/open.
func (h *Handlers) Open(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req OpenRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Path == "" {
		return nil, errors.Validation("path", "path is required")
	}

	appID, err := h.service.Open(ctx, req.Path)
	if err != nil {
		h.logger.Debug("Open failed",
			zap.String("path", req.Path),
			zap.Error(err))
		return nil, errors.NotFound("handler app for", req.Path)
	}
	return map[string]interface{}{"app_id": appID}, nil
}

// GetRequest is the payload for opener/get.
type GetRequest struct {
	Extension string `json:"extension"`
}

// Get handles opener/get.
func (h *Handlers) Get(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req GetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Extension == "" {
		return nil, errors.Validation("extension", "extension is required")
	}

	appID, found, err := h.service.Default(ctx, req.Extension)
	if err != nil {
		return nil, errors.Internal("failed to read opener default", err)
	}
	return map[string]interface{}{
		"extension": req.Extension,
		"app_id":    appID,
		"found":     found,
	}, nil
}

// SetDefaultRequest is the payload for opener/setDefault.
type SetDefaultRequest struct {
	Extension string `json:"extension"`
	AppID     string `json:"app_id"`
}

// SetDefault handles opener/setDefault.
func (h *Handlers) SetDefault(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req SetDefaultRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Extension == "" {
		return nil, errors.Validation("extension", "extension is required")
	}
	if req.AppID == "" {
		return nil, errors.Validation("app_id", "app_id is required")
	}

	if err := h.service.SetDefault(ctx, req.Extension, req.AppID); err != nil {
		return nil, errors.Validation("app_id", err.Error())
	}
	return map[string]interface{}{"set": true}, nil
}

// Package handlers registers the storage namespace on the command registry.
package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/storage"
	"github.com/deskd/deskd/pkg/ipc"
)

// Handlers contains the storage namespace command handlers. Each handler is
// a thin adapter: validate the payload, delegate to the store scoped by the
// caller's app id.
type Handlers struct {
	store  *storage.Store
	logger *logger.Logger
}

// NewHandlers creates the storage handlers.
func NewHandlers(store *storage.Store, log *logger.Logger) *Handlers {
	return &Handlers{
		store:  store,
		logger: log.WithFields(zap.String("component", "storage_handlers")),
	}
}

// RegisterHandlers registers all storage commands with the registry.
// Reads and writes carry separate permissions; keys needs no extra gate
// beyond storage/read because results are already scoped by caller identity.
func (h *Handlers) RegisterHandlers(reg *command.Registry) {
	reg.MustRegister("storage", "get", ipc.PermStorageRead, h.Get)
	reg.MustRegister("storage", "set", ipc.PermStorageWrite, h.Set)
	reg.MustRegister("storage", "delete", ipc.PermStorageWrite, h.Delete)
	reg.MustRegister("storage", "keys", ipc.PermStorageRead, h.Keys)
}

// GetRequest is the payload for storage/get.
type GetRequest struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// GetResponse is the response for storage/get.
type GetResponse struct {
	Exists bool            `json:"exists"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Get handles storage/get.
func (h *Handlers) Get(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req GetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Namespace == "" || req.Key == "" {
		return nil, errors.Validation("key", "namespace and key are required")
	}

	value, err := h.store.Get(ctx, inv.AppID, req.Namespace, req.Key)
	if err != nil {
		h.logger.Error("Storage get failed", zap.Error(err))
		return nil, errors.Internal("failed to read key", err)
	}
	return GetResponse{Exists: value != nil, Value: value}, nil
}

// SetRequest is the payload for storage/set.
type SetRequest struct {
	Namespace string          `json:"namespace"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
}

// Set handles storage/set.
func (h *Handlers) Set(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req SetRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Namespace == "" || req.Key == "" {
		return nil, errors.Validation("key", "namespace and key are required")
	}
	if req.Value == nil {
		return nil, errors.Validation("value", "value is required")
	}

	if err := h.store.Set(ctx, inv.AppID, req.Namespace, req.Key, req.Value); err != nil {
		h.logger.Error("Storage set failed", zap.Error(err))
		return nil, errors.Internal("failed to write key", err)
	}
	return map[string]interface{}{"stored": true}, nil
}

// DeleteRequest is the payload for storage/delete.
type DeleteRequest struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// Delete handles storage/delete.
func (h *Handlers) Delete(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req DeleteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Namespace == "" || req.Key == "" {
		return nil, errors.Validation("key", "namespace and key are required")
	}

	deleted, err := h.store.Delete(ctx, inv.AppID, req.Namespace, req.Key)
	if err != nil {
		h.logger.Error("Storage delete failed", zap.Error(err))
		return nil, errors.Internal("failed to delete key", err)
	}
	return map[string]interface{}{"deleted": deleted}, nil
}

// KeysRequest is the payload for storage/keys.
type KeysRequest struct {
	Namespace string `json:"namespace"`
}

// Keys handles storage/keys.
func (h *Handlers) Keys(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req KeysRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Namespace == "" {
		return nil, errors.Validation("namespace", "namespace is required")
	}

	keys, err := h.store.Keys(ctx, inv.AppID, req.Namespace)
	if err != nil {
		h.logger.Error("Storage keys failed", zap.Error(err))
		return nil, errors.Internal("failed to list keys", err)
	}
	if keys == nil {
		keys = []string{}
	}
	return map[string]interface{}{"keys": keys}, nil
}

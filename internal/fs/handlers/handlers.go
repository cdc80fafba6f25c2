// Package handlers registers the fs namespace on the command registry.
package handlers

import (
	"context"
	"encoding/json"
	"os"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/fs"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/pkg/ipc"
)

// Handlers contains the fs namespace command handlers.
type Handlers struct {
	service *fs.Service
	logger  *logger.Logger
}

// NewHandlers creates the fs handlers.
func NewHandlers(svc *fs.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		service: svc,
		logger:  log.WithFields(zap.String("component", "fs_handlers")),
	}
}

// RegisterHandlers registers all fs commands with the registry.
func (h *Handlers) RegisterHandlers(reg *command.Registry) {
	reg.MustRegister("fs", "readFile", ipc.PermFsRead, h.ReadFile)
	reg.MustRegister("fs", "writeFile", ipc.PermFsWrite, h.WriteFile)
	reg.MustRegister("fs", "list", ipc.PermFsRead, h.List)
	reg.MustRegister("fs", "remove", ipc.PermFsWrite, h.Remove)
}

// PathRequest is the payload for fs commands addressing a single path.
type PathRequest struct {
	Path string `json:"path"`
}

// ReadFileResponse is the response for fs/readFile.
type ReadFileResponse struct {
	Content string `json:"content"`
}

// ReadFile handles fs/readFile. A missing file is a routine outcome and
// comes back as NOT_FOUND, not a handler crash.
func (h *Handlers) ReadFile(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req PathRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Path == "" {
		return nil, errors.Validation("path", "path is required")
	}

	data, err := h.service.ReadFile(inv.AppID, req.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("file", req.Path)
		}
		h.logger.Error("Read failed", zap.String("path", req.Path), zap.Error(err))
		return nil, errors.Internal("failed to read file", err)
	}
	return ReadFileResponse{Content: string(data)}, nil
}

// WriteFileRequest is the payload for fs/writeFile.
type WriteFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// WriteFile handles fs/writeFile.
func (h *Handlers) WriteFile(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req WriteFileRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Path == "" {
		return nil, errors.Validation("path", "path is required")
	}

	if err := h.service.WriteFile(inv.AppID, req.Path, []byte(req.Content)); err != nil {
		h.logger.Error("Write failed", zap.String("path", req.Path), zap.Error(err))
		return nil, errors.Internal("failed to write file", err)
	}
	return map[string]interface{}{"written": true}, nil
}

// ListResponse is the response for fs/list.
type ListResponse struct {
	Entries []fs.EntryInfo `json:"entries"`
}

// List handles fs/list.
func (h *Handlers) List(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req PathRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}

	entries, err := h.service.List(inv.AppID, req.Path)
	if err != nil {
		h.logger.Error("List failed", zap.String("path", req.Path), zap.Error(err))
		return nil, errors.Internal("failed to list directory", err)
	}
	return ListResponse{Entries: entries}, nil
}

// Remove handles fs/remove.
func (h *Handlers) Remove(ctx context.Context, inv *command.Invocation, payload json.RawMessage) (interface{}, error) {
	var req PathRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errors.BadRequest("invalid payload: " + err.Error())
	}
	if req.Path == "" {
		return nil, errors.Validation("path", "path is required")
	}

	removed, err := h.service.Remove(inv.AppID, req.Path)
	if err != nil {
		h.logger.Error("Remove failed", zap.String("path", req.Path), zap.Error(err))
		return nil, errors.Internal("failed to remove path", err)
	}
	return map[string]interface{}{"removed": removed}, nil
}

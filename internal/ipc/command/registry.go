// Package command implements the host-side command registry: the dispatch
// table mapping "namespace/action" strings to handler functions plus their
// declared permission metadata.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/permission"
	"github.com/deskd/deskd/pkg/ipc"
)

// Invocation carries the caller identity for one inbound call. It is built
// by the bridge from transport-level state; handlers never derive identity
// from the payload. User-supplied arguments stay in the payload and cannot
// collide with these fields.
type Invocation struct {
	// AppID is the identity of the calling app, resolved by the bridge.
	AppID string

	// ClientID is the opaque id of the calling view/transport connection.
	ClientID string

	// Grants is the caller's immutable permission set.
	Grants permission.GrantSet
}

// HandlerFunc is a registered command handler. The returned value is
// marshaled into the response payload; a returned error is converted to a
// tagged IPC error. Handlers that expect routine failures should return a
// typed *errors.IPCError so the kind survives to the wire.
type HandlerFunc func(ctx context.Context, inv *Invocation, payload json.RawMessage) (interface{}, error)

// Descriptor is one registered command. Descriptors are created once at
// startup and never mutated afterwards.
type Descriptor struct {
	Namespace  string
	Action     string
	Permission string // empty means no permission gate
	Handler    HandlerFunc
}

// Command returns the registry key "namespace/action".
func (d *Descriptor) Command() string {
	return ipc.JoinCommand(d.Namespace, d.Action)
}

// Registry is the dispatch table. Registration happens at process startup in
// a fixed order; dispatch is concurrent read-only lookups.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Descriptor
	logger   *logger.Logger
}

// NewRegistry creates an empty command registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		commands: make(map[string]*Descriptor),
		logger:   log.WithFields(zap.String("component", "command_registry")),
	}
}

// Register adds a command to the table. Registering a duplicate
// "namespace/action" key is a programmer error and fails immediately rather
// than overwriting.
func (r *Registry) Register(namespace, action, perm string, handler HandlerFunc) error {
	if namespace == "" || action == "" {
		return fmt.Errorf("command registration requires namespace and action, got %q/%q", namespace, action)
	}
	if handler == nil {
		return fmt.Errorf("command %s/%s registered with nil handler", namespace, action)
	}

	key := ipc.JoinCommand(namespace, action)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[key]; exists {
		return errors.AlreadyRegistered("command " + key)
	}
	r.commands[key] = &Descriptor{
		Namespace:  namespace,
		Action:     action,
		Permission: perm,
		Handler:    handler,
	}

	r.logger.Debug("Registered command",
		zap.String("command", key),
		zap.String("permission", perm))
	return nil
}

// MustRegister registers a command and panics on error. Intended for the
// composition root, where a duplicate key is a startup bug.
func (r *Registry) MustRegister(namespace, action, perm string, handler HandlerFunc) {
	if err := r.Register(namespace, action, perm, handler); err != nil {
		panic(err)
	}
}

// Has reports whether a handler is registered for the command.
func (r *Registry) Has(command string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[command]
	return ok
}

// Commands returns the registered command keys. The order is unspecified.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for key := range r.commands {
		out = append(out, key)
	}
	return out
}

// Dispatch looks up the command, enforces its declared permission against
// the caller's grants, and invokes the handler. All failures come back as a
// tagged *errors.IPCError; a misbehaving handler (error or panic) is
// contained and never takes down the dispatch path.
func (r *Registry) Dispatch(ctx context.Context, inv *Invocation, command string, payload json.RawMessage) (json.RawMessage, *errors.IPCError) {
	r.mu.RLock()
	desc, ok := r.commands[command]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.UnknownCommand(command)
	}

	if desc.Permission != "" && !inv.Grants.Authorizes(desc.Permission) {
		r.logger.Warn("Permission denied",
			zap.String("command", command),
			zap.String("app_id", inv.AppID),
			zap.String("permission", desc.Permission))
		return nil, errors.PermissionDenied(desc.Permission)
	}

	value, err := r.invoke(ctx, desc, inv, payload)
	if err != nil {
		return nil, errors.FromError(err)
	}

	data, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		return nil, errors.Internal("failed to marshal handler result", marshalErr)
	}
	return data, nil
}

// invoke runs the handler with panic containment.
func (r *Registry) invoke(ctx context.Context, desc *Descriptor, inv *Invocation, payload json.RawMessage) (value interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Handler panicked",
				zap.String("command", desc.Command()),
				zap.Any("panic", rec))
			err = errors.HandlerError(fmt.Errorf("handler panic: %v", rec))
		}
	}()
	return desc.Handler(ctx, inv, payload)
}

// Package bridge is the transport-agnostic entry point for inbound commands
// and outbound pushes. It binds transport-level client ids to app identities,
// routes requests into the command registry, and owns subscriber teardown.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/ipc/events"
	"github.com/deskd/deskd/internal/ipc/permission"
	"github.com/deskd/deskd/pkg/ipc"
)

// Identity is the resolved identity of a connected client. It is established
// by the gateway from transport-level state (the connect token) before any
// command is dispatched; the client cannot supply it.
type Identity struct {
	AppID  string
	Grants permission.GrantSet
}

// Bridge routes inbound commands and outbound events for all connected
// clients. One bridge serves the whole host process.
type Bridge struct {
	registry *command.Registry
	exchange *events.Exchange
	sink     events.Sink

	mu       sync.RWMutex
	bindings map[string]Identity // clientID -> identity

	logger *logger.Logger
}

// New creates a bridge over the given registry and exchange. The sink is the
// same push surface the exchange delivers through.
func New(registry *command.Registry, exchange *events.Exchange, sink events.Sink, log *logger.Logger) *Bridge {
	return &Bridge{
		registry: registry,
		exchange: exchange,
		sink:     sink,
		bindings: make(map[string]Identity),
		logger:   log.WithFields(zap.String("component", "ipc_bridge")),
	}
}

// BindClient associates a transport client with a resolved app identity.
// Until this is called, every inbound command from the client is rejected
// with NOT_INITIALIZED.
func (b *Bridge) BindClient(clientID string, identity Identity) {
	b.mu.Lock()
	b.bindings[clientID] = identity
	b.mu.Unlock()

	b.logger.Debug("Client bound",
		zap.String("client_id", clientID),
		zap.String("app_id", identity.AppID))
}

// UnbindClient removes a client binding and purges all of its event
// subscriptions. Called by the gateway when the transport closes.
func (b *Bridge) UnbindClient(clientID string) {
	b.mu.Lock()
	delete(b.bindings, clientID)
	b.mu.Unlock()

	b.exchange.RemoveClient(clientID)

	b.logger.Debug("Client unbound", zap.String("client_id", clientID))
}

// RemoveApp unbinds every client belonging to an app. Used when an app's
// backend process dies so that no subscription outlives it.
func (b *Bridge) RemoveApp(appID string) {
	b.mu.Lock()
	var removed []string
	for clientID, identity := range b.bindings {
		if identity.AppID == appID {
			delete(b.bindings, clientID)
			removed = append(removed, clientID)
		}
	}
	b.mu.Unlock()

	for _, clientID := range removed {
		b.exchange.RemoveClient(clientID)
	}

	if len(removed) > 0 {
		b.logger.Info("Reaped clients for stopped app",
			zap.String("app_id", appID),
			zap.Int("clients", len(removed)))
	}
}

// IdentityOf returns the bound identity for a client, if any.
func (b *Bridge) IdentityOf(clientID string) (Identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	identity, ok := b.bindings[clientID]
	return identity, ok
}

// HandleInbound processes one raw inbound message from a client and always
// returns a response envelope. It never returns a Go error to the transport:
// every failure, including a malformed frame, becomes a tagged error message
// so one misbehaving app cannot destabilize the host.
func (b *Bridge) HandleInbound(ctx context.Context, clientID string, raw []byte) *ipc.Message {
	var msg ipc.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ipc.NewError("", "", errors.KindBadRequest, "invalid message format")
	}
	return b.HandleMessage(ctx, clientID, &msg)
}

// HandleMessage processes one parsed inbound message.
func (b *Bridge) HandleMessage(ctx context.Context, clientID string, msg *ipc.Message) *ipc.Message {
	identity, bound := b.IdentityOf(clientID)
	if !bound {
		return ipc.NewError(msg.ID, msg.Command, errors.KindNotInitialized,
			"caller identity not established")
	}

	// Clients only ever send requests; response and event frames flow the
	// other way. An omitted type is treated as a request.
	if msg.Type != "" && msg.Type != ipc.MessageTypeRequest {
		return ipc.NewError(msg.ID, msg.Command, errors.KindBadRequest,
			"only request frames are accepted")
	}

	// Subscription lifecycle is handled here rather than in the registry:
	// it needs the client id, and it must work for every namespace without
	// per-namespace registration.
	switch msg.Command {
	case ipc.CommandSubscribe:
		return b.handleSubscribe(clientID, msg)
	case ipc.CommandUnsubscribe:
		return b.handleUnsubscribe(clientID, msg)
	}

	inv := &command.Invocation{
		AppID:    identity.AppID,
		ClientID: clientID,
		Grants:   identity.Grants,
	}

	result, ipcErr := b.registry.Dispatch(ctx, inv, msg.Command, msg.Payload)
	if ipcErr != nil {
		return ipc.NewError(msg.ID, msg.Command, ipcErr.Kind, ipcErr.Message)
	}
	return ipc.NewRawResponse(msg.ID, msg.Command, result)
}

// subscribePayload is the payload for ipc/subscribe and ipc/unsubscribe.
type subscribePayload struct {
	Event string `json:"event"`
}

func (b *Bridge) handleSubscribe(clientID string, msg *ipc.Message) *ipc.Message {
	var req subscribePayload
	if err := msg.ParsePayload(&req); err != nil {
		return ipc.NewError(msg.ID, msg.Command, errors.KindBadRequest, "invalid payload: "+err.Error())
	}
	if req.Event == "" {
		return ipc.NewError(msg.ID, msg.Command, errors.KindValidation, "event is required")
	}

	b.exchange.Subscribe(clientID, req.Event)

	resp, _ := ipc.NewResponse(msg.ID, msg.Command, map[string]interface{}{
		"subscribed": true,
		"event":      req.Event,
	})
	return resp
}

func (b *Bridge) handleUnsubscribe(clientID string, msg *ipc.Message) *ipc.Message {
	var req subscribePayload
	if err := msg.ParsePayload(&req); err != nil {
		return ipc.NewError(msg.ID, msg.Command, errors.KindBadRequest, "invalid payload: "+err.Error())
	}
	if req.Event == "" {
		return ipc.NewError(msg.ID, msg.Command, errors.KindValidation, "event is required")
	}

	b.exchange.Unsubscribe(clientID, req.Event)

	resp, _ := ipc.NewResponse(msg.ID, msg.Command, map[string]interface{}{
		"subscribed": false,
		"event":      req.Event,
	})
	return resp
}

// Push delivers a fire-and-forget message to a specific client. Delivery
// failures are logged and swallowed; the calling manager never sees them.
func (b *Bridge) Push(clientID string, msg *ipc.Message) {
	if err := b.sink.Push(clientID, msg); err != nil {
		b.logger.Warn("Push failed",
			zap.String("client_id", clientID),
			zap.String("command", msg.Command),
			zap.Error(err))
	}
}

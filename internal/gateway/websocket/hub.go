// Package websocket provides the WebSocket gateway carrying all IPC traffic
// between app frontends and the host.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/ipc/bridge"
	"github.com/deskd/deskd/pkg/ipc"
)

// Hub manages all WebSocket client connections. It implements the event
// sink: a push addresses a client by id and never blocks the publisher.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	bridge *bridge.Bridge

	mu     sync.RWMutex
	logger *logger.Logger
}

// NewHub creates a new WebSocket hub. The bridge is attached after
// construction because the bridge's sink is the hub itself.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log.WithFields(zap.String("component", "ws_hub")),
	}
}

// SetBridge attaches the IPC bridge handling this hub's traffic.
func (h *Hub) SetBridge(b *bridge.Bridge) {
	h.bridge = b
}

// Run starts the hub's main processing loop.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// closeAllClients closes all client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
		h.bridge.UnbindClient(id)
	}
}

// removeClient removes a client from the hub and tears down its bridge
// state (identity binding and every event subscription).
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.mu.Unlock()

	h.bridge.UnbindClient(client.ID)
	h.logger.Debug("Client unregistered", zap.String("client_id", client.ID))
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Push delivers a message to a specific client. It implements events.Sink:
// the error return lets the exchange log per-subscriber failures without
// them reaching the publisher.
//
// The send happens under the read lock: removeClient closes the send channel
// under the write lock, so a concurrent disconnect either removes the client
// from the map before the lookup or waits until the send is done. Without
// this the push could hit a closed channel and panic the host.
func (h *Hub) Push(clientID string, msg *ipc.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return fmt.Errorf("client '%s' is not connected", clientID)
	}

	select {
	case client.send <- data:
		return nil
	default:
		return fmt.Errorf("client '%s' send buffer full", clientID)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

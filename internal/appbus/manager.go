// Package appbus implements the inter-app channel broker: a directory of
// services registered by running apps, and a connect operation that links two
// apps with a direct duplex channel after a single trusted handshake.
package appbus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/appbus/channel"
	"github.com/deskd/deskd/internal/common/errors"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/hostbus"
)

// ServiceInfo describes a registered service. Service existence is public;
// connecting to it is permission-gated.
type ServiceInfo struct {
	OwnerAppID     string   `json:"owner_app_id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	AllowedClients []string `json:"allowed_clients,omitempty"`
}

// Key returns the unique directory key for the service.
func (s *ServiceInfo) Key() string {
	return s.OwnerAppID + "/" + s.Name
}

// registration is one directory entry. The allowed set is nil when the
// service accepts any app holding the base connect permission.
type registration struct {
	info    ServiceInfo
	allowed map[string]struct{}
}

// Connection is the bundle handed to one side of an established channel: the
// endpoint plus enough metadata to label the connection.
type Connection struct {
	Endpoint    *channel.Endpoint
	PeerAppID   string
	ServiceName string
	Description string
	// Initiator is true on the side that called connect.
	Initiator bool
}

// EndpointSink transfers ownership of a connection end to a running app's
// context. Implemented by the app-runtime adapter; the broker holds no
// reference to the endpoint after a successful delivery.
type EndpointSink interface {
	DeliverEndpoint(appID string, conn *Connection) error
}

// Manager is the AppBus broker. It is only in the path during registration
// and connect; established channels run peer-to-peer.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*registration

	sink   EndpointSink
	buffer int
	logger *logger.Logger

	reapSub hostbus.Subscription
}

// NewManager creates an AppBus broker delivering endpoints through the given
// sink. buffer is the per-direction frame buffer of constructed channels.
func NewManager(sink EndpointSink, buffer int, log *logger.Logger) *Manager {
	return &Manager{
		services: make(map[string]*registration),
		sink:     sink,
		buffer:   buffer,
		logger:   log.WithFields(zap.String("component", "appbus")),
	}
}

// Start subscribes the broker to app lifecycle events so registrations never
// outlive their owning app. A clean unregister beforehand makes the reap a
// no-op.
func (m *Manager) Start(bus hostbus.Bus) error {
	sub, err := bus.Subscribe(hostbus.SubjectAppStopped, func(ctx context.Context, event *hostbus.Event) error {
		if appID := event.AppID(); appID != "" {
			m.ReapApp(appID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.reapSub = sub
	return nil
}

// Stop releases the lifecycle subscription.
func (m *Manager) Stop() {
	if m.reapSub != nil {
		_ = m.reapSub.Unsubscribe()
		m.reapSub = nil
	}
}

// RegisterOptions carries the optional fields of a service registration.
type RegisterOptions struct {
	Description    string
	AllowedClients []string
}

// Register adds a service to the directory. The (ownerAppID, serviceName)
// pair is unique; a duplicate fails with ALREADY_REGISTERED. The caller's
// expose permission has already been checked at the dispatch boundary; the
// owner identity argument is trusted here.
func (m *Manager) Register(ownerAppID, serviceName string, opts RegisterOptions) *errors.IPCError {
	if ownerAppID == "" || serviceName == "" {
		return errors.Validation("serviceName", "owner app id and service name are required")
	}

	info := ServiceInfo{
		OwnerAppID:     ownerAppID,
		Name:           serviceName,
		Description:    opts.Description,
		AllowedClients: opts.AllowedClients,
	}

	var allowed map[string]struct{}
	if opts.AllowedClients != nil {
		allowed = make(map[string]struct{}, len(opts.AllowedClients))
		for _, id := range opts.AllowedClients {
			allowed[id] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[info.Key()]; exists {
		return errors.AlreadyRegistered("service " + info.Key())
	}
	m.services[info.Key()] = &registration{info: info, allowed: allowed}

	m.logger.Info("Service registered",
		zap.String("service", info.Key()),
		zap.Int("allowed_clients", len(opts.AllowedClients)))
	return nil
}

// Unregister removes a service from the directory. Idempotent: the return
// value reports whether an entry was actually removed.
func (m *Manager) Unregister(ownerAppID, serviceName string) bool {
	key := ownerAppID + "/" + serviceName

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.services[key]; !exists {
		return false
	}
	delete(m.services, key)

	m.logger.Info("Service unregistered", zap.String("service", key))
	return true
}

// List returns every registered service. Read-only discovery, no permission
// gate.
func (m *Manager) List() []ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ServiceInfo, 0, len(m.services))
	for _, reg := range m.services {
		out = append(out, reg.info)
	}
	return out
}

// ByApp returns the services registered by one app.
func (m *Manager) ByApp(appID string) []ServiceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ServiceInfo
	for _, reg := range m.services {
		if reg.info.OwnerAppID == appID {
			out = append(out, reg.info)
		}
	}
	return out
}

// ReapApp removes every registration owned by an app. Returns the number of
// services removed.
func (m *Manager) ReapApp(appID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for key, reg := range m.services {
		if reg.info.OwnerAppID == appID {
			delete(m.services, key)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Info("Reaped services for stopped app",
			zap.String("app_id", appID),
			zap.Int("services", removed))
	}
	return removed
}

// ConnectResult is the metadata returned to a successful connect caller, so
// the frontend can label the connection.
type ConnectResult struct {
	OwnerAppID  string `json:"owner_app_id"`
	ServiceName string `json:"service_name"`
	Description string `json:"description,omitempty"`
}

// Connect validates the request, builds a linked endpoint pair, and hands
// one end to each participant. Every failure is a tagged error, never a
// panic or a Go-level throw: not-found versus not-allowed must be
// distinguishable by the frontend. Failures are terminal for the call;
// retry is a caller concern.
//
// Self-connect (caller == owner) needs no special case: the pair is built
// and both ends are delivered to the same app.
func (m *Manager) Connect(ctx context.Context, callerAppID, targetAppID, serviceName string) (*ConnectResult, *errors.IPCError) {
	m.mu.RLock()
	reg, found := m.services[targetAppID+"/"+serviceName]
	m.mu.RUnlock()

	if !found {
		return nil, errors.ServiceNotFound(targetAppID, serviceName)
	}

	if reg.allowed != nil {
		if _, ok := reg.allowed[callerAppID]; !ok {
			m.logger.Warn("Connect rejected by allow-list",
				zap.String("caller", callerAppID),
				zap.String("service", reg.info.Key()))
			return nil, errors.ClientNotAllowed(callerAppID, serviceName)
		}
	}

	callerEnd, ownerEnd := channel.Pair(m.buffer)

	// Deliver the owner side first; if the caller side then fails, closing
	// the channel signals the owner so no half-connected state survives.
	if err := m.sink.DeliverEndpoint(reg.info.OwnerAppID, &Connection{
		Endpoint:    ownerEnd,
		PeerAppID:   callerAppID,
		ServiceName: serviceName,
		Description: reg.info.Description,
	}); err != nil {
		callerEnd.Close()
		return nil, errors.ChannelSetupFailed("failed to deliver endpoint to service owner", err)
	}

	if err := m.sink.DeliverEndpoint(callerAppID, &Connection{
		Endpoint:    callerEnd,
		PeerAppID:   reg.info.OwnerAppID,
		ServiceName: serviceName,
		Description: reg.info.Description,
		Initiator:   true,
	}); err != nil {
		callerEnd.Close()
		return nil, errors.ChannelSetupFailed("failed to deliver endpoint to caller", err)
	}

	// From here the broker keeps no reference to either endpoint.
	m.logger.Info("Channel established",
		zap.String("caller", callerAppID),
		zap.String("service", reg.info.Key()))

	return &ConnectResult{
		OwnerAppID:  reg.info.OwnerAppID,
		ServiceName: serviceName,
		Description: reg.info.Description,
	}, nil
}

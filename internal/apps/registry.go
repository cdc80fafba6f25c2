package apps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/hostbus"
	"github.com/deskd/deskd/internal/ipc/permission"
)

// Launcher starts or focuses an app by id. The process lifecycle manager
// implementing it lives outside this core.
type Launcher interface {
	Launch(ctx context.Context, appID string) error
	Focus(appID string) error
}

// RunningApp is the registry's view of a started app.
type RunningApp struct {
	AppID     string
	StartedAt time.Time
}

// Registry is the installed-app directory plus the running-app registry. It
// issues connect tokens for started apps and resolves them back to an
// identity for the gateway; the token is the only identity material a
// frontend ever holds, so a caller cannot claim another app's identity.
type Registry struct {
	mu        sync.RWMutex
	installed map[string]*Manifest
	grants    map[string]permission.GrantSet // app id -> immutable grant set
	running   map[string]*RunningApp
	tokens    map[string]string // connect token -> app id

	bus    hostbus.Bus
	logger *logger.Logger
}

// NewRegistry creates an app registry publishing lifecycle events on the
// host bus.
func NewRegistry(bus hostbus.Bus, log *logger.Logger) *Registry {
	return &Registry{
		installed: make(map[string]*Manifest),
		grants:    make(map[string]permission.GrantSet),
		running:   make(map[string]*RunningApp),
		tokens:    make(map[string]string),
		bus:       bus,
		logger:    log.WithFields(zap.String("component", "app_registry")),
	}
}

// Install adds an app manifest to the directory. The grant set is built once
// here and never mutated afterwards.
func (r *Registry) Install(m *Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.installed[m.ID]; exists {
		return fmt.Errorf("app '%s' is already installed", m.ID)
	}
	r.installed[m.ID] = m
	r.grants[m.ID] = permission.NewGrantSet(m.Permissions)

	r.logger.Info("App installed",
		zap.String("app_id", m.ID),
		zap.Int("permissions", len(m.Permissions)))
	return nil
}

// InstallDir loads every manifest under dir and installs it.
func (r *Registry) InstallDir(dir string) error {
	manifests, err := LoadManifestDir(dir)
	if err != nil {
		return err
	}
	for _, m := range manifests {
		if err := r.Install(m); err != nil {
			return err
		}
	}
	return nil
}

// Manifest returns the installed manifest for an app.
func (r *Registry) Manifest(appID string) (*Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.installed[appID]
	return m, ok
}

// Grants returns the immutable grant set issued to an app.
func (r *Registry) Grants(appID string) (permission.GrantSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[appID]
	return g, ok
}

// Installed returns the ids of all installed apps.
func (r *Registry) Installed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.installed))
	for id := range r.installed {
		out = append(out, id)
	}
	return out
}

// MarkStarted records an app as running, issues its connect token, and
// publishes deskd.app.started. The token is handed to the app's views by the
// process launcher; presenting it is how a transport proves its identity.
func (r *Registry) MarkStarted(ctx context.Context, appID string) (string, error) {
	r.mu.Lock()
	if _, installed := r.installed[appID]; !installed {
		r.mu.Unlock()
		return "", fmt.Errorf("app '%s' is not installed", appID)
	}
	if _, already := r.running[appID]; already {
		r.mu.Unlock()
		return "", fmt.Errorf("app '%s' is already running", appID)
	}

	token := uuid.New().String()
	r.running[appID] = &RunningApp{AppID: appID, StartedAt: time.Now().UTC()}
	r.tokens[token] = appID
	r.mu.Unlock()

	event := hostbus.NewEvent("app.started", "app_registry", map[string]interface{}{"app_id": appID})
	if err := r.bus.Publish(ctx, hostbus.SubjectAppStarted, event); err != nil {
		r.logger.Error("Failed to publish app.started", zap.Error(err))
	}

	r.logger.Info("App started", zap.String("app_id", appID))
	return token, nil
}

// MarkStopped records an app as stopped, revokes its tokens, and publishes
// deskd.app.stopped. Every termination path goes through here — clean exit
// and crash alike — so downstream reapers (bridge subscriptions, AppBus
// registrations) observe a single signal.
func (r *Registry) MarkStopped(ctx context.Context, appID string) {
	r.mu.Lock()
	delete(r.running, appID)
	for token, id := range r.tokens {
		if id == appID {
			delete(r.tokens, token)
		}
	}
	r.mu.Unlock()

	event := hostbus.NewEvent("app.stopped", "app_registry", map[string]interface{}{"app_id": appID})
	if err := r.bus.Publish(ctx, hostbus.SubjectAppStopped, event); err != nil {
		r.logger.Error("Failed to publish app.stopped", zap.Error(err))
	}

	r.logger.Info("App stopped", zap.String("app_id", appID))
}

// IsRunning reports whether an app is currently running.
func (r *Registry) IsRunning(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.running[appID]
	return ok
}

// ResolveToken maps a connect token to the app identity it was issued for.
// The zero return reports an unknown or revoked token.
func (r *Registry) ResolveToken(token string) (string, permission.GrantSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appID, ok := r.tokens[token]
	if !ok {
		return "", permission.GrantSet{}, false
	}
	return appID, r.grants[appID], true
}

package main

import (
	"context"

	"github.com/deskd/deskd/internal/appbus"
	appbushandlers "github.com/deskd/deskd/internal/appbus/handlers"
	"github.com/deskd/deskd/internal/apps"
	"github.com/deskd/deskd/internal/common/config"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/fs"
	fshandlers "github.com/deskd/deskd/internal/fs/handlers"
	gateway "github.com/deskd/deskd/internal/gateway/websocket"
	"github.com/deskd/deskd/internal/hostbus"
	"github.com/deskd/deskd/internal/ipc/bridge"
	"github.com/deskd/deskd/internal/ipc/command"
	"github.com/deskd/deskd/internal/ipc/events"
	"github.com/deskd/deskd/internal/notifications"
	notifyhandlers "github.com/deskd/deskd/internal/notifications/handlers"
	"github.com/deskd/deskd/internal/opener"
	openerhandlers "github.com/deskd/deskd/internal/opener/handlers"
	"github.com/deskd/deskd/internal/storage"
	storagehandlers "github.com/deskd/deskd/internal/storage/handlers"
)

// services bundles the host's long-lived components.
type services struct {
	hub      *gateway.Hub
	bridge   *bridge.Bridge
	registry *command.Registry
	apps     *apps.Registry
	appBus   *appbus.Manager
	runtimes *appbus.RuntimeDirectory
}

// buildServices wires the IPC core and every namespace handler. Handler
// registration happens here in a fixed order; a duplicate command key is a
// startup bug and panics before the server accepts traffic.
func buildServices(cfg *config.Config, bus hostbus.Bus, store *storage.Store, log *logger.Logger) (*services, error) {
	// IPC core. The hub is the push sink for both the exchange and the
	// bridge; the bridge is attached to the hub once constructed.
	hub := gateway.NewHub(log)
	exchange := events.NewExchange(hub, log)
	registry := command.NewRegistry(log)
	br := bridge.New(registry, exchange, hub, log)
	hub.SetBridge(br)

	// App directory and lifecycle.
	appRegistry := apps.NewRegistry(bus, log)
	if cfg.Apps.ManifestDir != "" {
		if err := appRegistry.InstallDir(cfg.Apps.ManifestDir); err != nil {
			return nil, err
		}
	}

	// AppBus broker.
	runtimes := appbus.NewRuntimeDirectory(log)
	appBus := appbus.NewManager(runtimes, cfg.AppBus.EndpointBuffer, log)
	if err := appBus.Start(bus); err != nil {
		return nil, err
	}

	// Reap client bindings and subscriptions when an app stops, however it
	// stopped.
	if _, err := bus.Subscribe(hostbus.SubjectAppStopped, func(ctx context.Context, event *hostbus.Event) error {
		if appID := event.AppID(); appID != "" {
			br.RemoveApp(appID)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	// Mirror lifecycle onto the shell namespace for subscribed frontends.
	if err := apps.ForwardLifecycleEvents(bus, events.NewEmitter("shell", exchange)); err != nil {
		return nil, err
	}

	// Managers behind the namespace handlers.
	notifySvc := notifications.NewService(events.NewEmitter("notify", exchange), log)
	fsSvc := fs.NewService(cfg.Apps.DataRoot, log)
	openerSvc := opener.NewService(store, appRegistry, nil, log)

	// Namespace handler registration, fixed order.
	storagehandlers.NewHandlers(store, log).RegisterHandlers(registry)
	fshandlers.NewHandlers(fsSvc, log).RegisterHandlers(registry)
	notifyhandlers.NewHandlers(notifySvc, log).RegisterHandlers(registry)
	openerhandlers.NewHandlers(openerSvc, log).RegisterHandlers(registry)
	appbushandlers.NewHandlers(appBus, log).RegisterHandlers(registry)

	return &services{
		hub:      hub,
		bridge:   br,
		registry: registry,
		apps:     appRegistry,
		appBus:   appBus,
		runtimes: runtimes,
	}, nil
}

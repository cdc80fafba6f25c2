package appbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
)

// ConnectionReceiver accepts ownership of one end of an established channel
// on behalf of a running app.
type ConnectionReceiver func(conn *Connection) error

// RuntimeDirectory is the default EndpointSink: the app-runtime adapter
// attaches a receiver per running app, and the broker delivers connection
// ends through it. Apps without an attached receiver cannot take part in a
// channel.
type RuntimeDirectory struct {
	mu        sync.RWMutex
	receivers map[string]ConnectionReceiver
	logger    *logger.Logger
}

// NewRuntimeDirectory creates an empty runtime directory.
func NewRuntimeDirectory(log *logger.Logger) *RuntimeDirectory {
	return &RuntimeDirectory{
		receivers: make(map[string]ConnectionReceiver),
		logger:    log.WithFields(zap.String("component", "appbus_runtimes")),
	}
}

// Attach registers the connection receiver for a running app, replacing any
// previous one.
func (d *RuntimeDirectory) Attach(appID string, receiver ConnectionReceiver) {
	d.mu.Lock()
	d.receivers[appID] = receiver
	d.mu.Unlock()

	d.logger.Debug("Runtime attached", zap.String("app_id", appID))
}

// Detach removes an app's connection receiver.
func (d *RuntimeDirectory) Detach(appID string) {
	d.mu.Lock()
	delete(d.receivers, appID)
	d.mu.Unlock()

	d.logger.Debug("Runtime detached", zap.String("app_id", appID))
}

// DeliverEndpoint implements EndpointSink. Ownership of the connection
// passes to the receiver on success.
func (d *RuntimeDirectory) DeliverEndpoint(appID string, conn *Connection) error {
	d.mu.RLock()
	receiver, ok := d.receivers[appID]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("app '%s' has no attached runtime", appID)
	}
	return receiver(conn)
}

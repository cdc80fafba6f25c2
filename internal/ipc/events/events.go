// Package events implements the namespaced event fan-out: host-side managers
// publish events through per-namespace emitters, and subscribed clients
// receive them through the bridge's push sink.
package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/pkg/ipc"
)

// Sink delivers a message to a specific subscriber. Push must not block on a
// slow subscriber; the gateway implements it with a bounded send buffer.
type Sink interface {
	Push(clientID string, msg *ipc.Message) error
}

// Exchange is the shared subscription table behind every emitter. Clients
// subscribe to fully-qualified event names ("namespace/eventName"); the
// bridge owns subscriber liveness and purges a client's subscriptions when
// its transport dies.
type Exchange struct {
	mu sync.RWMutex

	// subscribers holds, per event name, the subscribed client ids in
	// subscription order.
	subscribers map[string][]string

	// byClient indexes event names by client id for O(events) teardown.
	byClient map[string]map[string]struct{}

	sink   Sink
	logger *logger.Logger
}

// NewExchange creates an empty subscription exchange delivering through the
// given sink.
func NewExchange(sink Sink, log *logger.Logger) *Exchange {
	return &Exchange{
		subscribers: make(map[string][]string),
		byClient:    make(map[string]map[string]struct{}),
		sink:        sink,
		logger:      log.WithFields(zap.String("component", "event_exchange")),
	}
}

// Subscribe registers a client's interest in an event name. Subscribing
// twice to the same event is a no-op.
func (e *Exchange) Subscribe(clientID, event string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if events, ok := e.byClient[clientID]; ok {
		if _, dup := events[event]; dup {
			return
		}
	} else {
		e.byClient[clientID] = make(map[string]struct{})
	}

	e.byClient[clientID][event] = struct{}{}
	e.subscribers[event] = append(e.subscribers[event], clientID)

	e.logger.Debug("Client subscribed",
		zap.String("client_id", clientID),
		zap.String("event", event))
}

// Unsubscribe removes a client's interest in an event name. Unknown
// subscriptions are ignored.
func (e *Exchange) Unsubscribe(clientID, event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(clientID, event)
}

// RemoveClient purges every subscription held by a client, across all
// namespaces. Called by the bridge when the client's transport is torn down;
// stale entries after this point would be a leak.
func (e *Exchange) RemoveClient(clientID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for event := range e.byClient[clientID] {
		e.removeLocked(clientID, event)
	}
	delete(e.byClient, clientID)
}

// removeLocked drops one (client, event) pair. Caller holds the write lock.
func (e *Exchange) removeLocked(clientID, event string) {
	if events, ok := e.byClient[clientID]; ok {
		delete(events, event)
		if len(events) == 0 {
			delete(e.byClient, clientID)
		}
	}
	subs := e.subscribers[event]
	for i, id := range subs {
		if id == clientID {
			e.subscribers[event] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subscribers[event]) == 0 {
		delete(e.subscribers, event)
	}
}

// Notify pushes a payload to every subscriber of the event, in subscription
// order. A push failure (dead transport, full buffer) is logged per
// subscriber and never prevents delivery to the remaining subscribers or
// escapes to the publisher.
func (e *Exchange) Notify(event string, payload interface{}) {
	msg, err := ipc.NewEvent(event, payload)
	if err != nil {
		e.logger.Error("Failed to marshal event payload",
			zap.String("event", event),
			zap.Error(err))
		return
	}

	e.mu.RLock()
	subs := make([]string, len(e.subscribers[event]))
	copy(subs, e.subscribers[event])
	e.mu.RUnlock()

	for _, clientID := range subs {
		if err := e.sink.Push(clientID, msg); err != nil {
			e.logger.Warn("Event delivery failed",
				zap.String("event", event),
				zap.String("client_id", clientID),
				zap.Error(err))
		}
	}
}

// SubscriberCount returns the number of clients subscribed to an event.
func (e *Exchange) SubscriberCount(event string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers[event])
}

// Emitter is the per-namespace publish facade handed to a manager. Event
// names are qualified with the namespace before fan-out, so a manager can
// only publish into its own namespace.
type Emitter struct {
	namespace string
	exchange  *Exchange
}

// NewEmitter binds an emitter to a namespace on the exchange.
func NewEmitter(namespace string, exchange *Exchange) *Emitter {
	return &Emitter{namespace: namespace, exchange: exchange}
}

// Namespace returns the emitter's namespace.
func (em *Emitter) Namespace() string {
	return em.namespace
}

// Notify publishes a payload to every subscriber of
// "namespace/eventName". Delivery order per subscriber follows call order on
// this emitter; no ordering holds across emitters.
func (em *Emitter) Notify(eventName string, payload interface{}) {
	em.exchange.Notify(ipc.JoinCommand(em.namespace, eventName), payload)
}

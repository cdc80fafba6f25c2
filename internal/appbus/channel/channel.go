// Package channel provides the in-process duplex message channel whose two
// endpoints the AppBus broker hands to a connecting pair of apps. After the
// handoff the broker keeps no reference; the endpoints talk directly.
//
// Both ends are symmetric: each supports fire-and-forget events, handler
// registration, and correlated request/response.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FrameKind discriminates the three message shapes on a channel.
type FrameKind string

const (
	FrameEvent    FrameKind = "event"
	FrameRequest  FrameKind = "request"
	FrameResponse FrameKind = "response"
)

// Frame is one message on a channel.
type Frame struct {
	Kind    FrameKind       `json:"kind"`
	ID      string          `json:"id,omitempty"` // correlation id for request/response
	Name    string          `json:"name"`         // event name or request action
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"` // set on failed responses
}

// EventHandler receives a fire-and-forget event payload.
type EventHandler func(payload json.RawMessage)

// RequestHandler answers a peer request. The returned value is marshaled
// into the response payload; a returned error travels back as the response
// error string.
type RequestHandler func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// Endpoint is one end of a duplex channel. An endpoint is owned by exactly
// one app after handoff; methods are safe for concurrent use within that
// owner.
type Endpoint struct {
	out chan *Frame
	in  chan *Frame

	done     chan struct{} // shared with the peer; closed once by either side
	closeOne *sync.Once    // shared with the peer

	mu          sync.RWMutex
	onEvent     map[string][]EventHandler
	onRequest   map[string]RequestHandler
	pending     map[string]chan *Frame
	defaultSink EventHandler // receives events with no named handler, if set
}

// Pair constructs the two linked endpoints of a bounded duplex channel.
// Each direction buffers up to buffer frames; a send into a full buffer
// fails rather than blocking.
func Pair(buffer int) (*Endpoint, *Endpoint) {
	if buffer <= 0 {
		buffer = 1
	}
	ab := make(chan *Frame, buffer)
	ba := make(chan *Frame, buffer)
	done := make(chan struct{})
	once := &sync.Once{}

	a := newEndpoint(ab, ba, done, once)
	b := newEndpoint(ba, ab, done, once)

	go a.receiveLoop()
	go b.receiveLoop()

	return a, b
}

func newEndpoint(out, in chan *Frame, done chan struct{}, once *sync.Once) *Endpoint {
	return &Endpoint{
		out:       out,
		in:        in,
		done:      done,
		closeOne:  once,
		onEvent:   make(map[string][]EventHandler),
		onRequest: make(map[string]RequestHandler),
		pending:   make(map[string]chan *Frame),
	}
}

// Close tears the channel down for both peers. Idempotent.
func (e *Endpoint) Close() {
	e.closeOne.Do(func() {
		close(e.done)
	})
}

// Done is closed when either peer closes the channel.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Closed reports whether the channel has been closed by either peer.
func (e *Endpoint) Closed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// On registers a handler for a named event from the peer. Multiple handlers
// for the same name are invoked in registration order.
func (e *Endpoint) On(event string, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvent[event] = append(e.onEvent[event], handler)
}

// OnAny registers a fallback handler for events with no named handler.
func (e *Endpoint) OnAny(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.defaultSink = handler
}

// OnRequest registers the responder for a request action. The last
// registration for an action wins.
func (e *Endpoint) OnRequest(action string, handler RequestHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRequest[action] = handler
}

// Send delivers a fire-and-forget event to the peer. It fails if the channel
// is closed or the peer's buffer is full; it never blocks.
func (e *Endpoint) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return e.push(&Frame{Kind: FrameEvent, Name: event, Payload: data})
}

// Request sends a correlated request to the peer and waits for the response
// or context expiry.
func (e *Endpoint) Request(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	id := uuid.New().String()
	reply := make(chan *Frame, 1)

	e.mu.Lock()
	e.pending[id] = reply
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, id)
		e.mu.Unlock()
	}()

	if err := e.push(&Frame{Kind: FrameRequest, ID: id, Name: action, Payload: data}); err != nil {
		return nil, err
	}

	select {
	case frame := <-reply:
		if frame.Error != "" {
			return nil, fmt.Errorf("peer error: %s", frame.Error)
		}
		return frame.Payload, nil
	case <-e.done:
		return nil, fmt.Errorf("channel closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// push writes a frame toward the peer without blocking.
func (e *Endpoint) push(frame *Frame) error {
	select {
	case <-e.done:
		return fmt.Errorf("channel closed")
	default:
	}

	select {
	case e.out <- frame:
		return nil
	case <-e.done:
		return fmt.Errorf("channel closed")
	default:
		return fmt.Errorf("peer buffer full")
	}
}

// receiveLoop dispatches inbound frames until the channel closes.
func (e *Endpoint) receiveLoop() {
	for {
		select {
		case <-e.done:
			return
		case frame := <-e.in:
			e.dispatch(frame)
		}
	}
}

func (e *Endpoint) dispatch(frame *Frame) {
	switch frame.Kind {
	case FrameEvent:
		e.mu.RLock()
		handlers := append([]EventHandler(nil), e.onEvent[frame.Name]...)
		fallback := e.defaultSink
		e.mu.RUnlock()

		if len(handlers) == 0 && fallback != nil {
			fallback(frame.Payload)
			return
		}
		for _, h := range handlers {
			h(frame.Payload)
		}

	case FrameRequest:
		e.mu.RLock()
		handler := e.onRequest[frame.Name]
		e.mu.RUnlock()

		// Responders run off the receive loop so a slow responder does not
		// stall event delivery.
		go e.respond(frame, handler)

	case FrameResponse:
		e.mu.RLock()
		reply := e.pending[frame.ID]
		e.mu.RUnlock()
		if reply != nil {
			reply <- frame
		}
	}
}

func (e *Endpoint) respond(frame *Frame, handler RequestHandler) {
	resp := &Frame{Kind: FrameResponse, ID: frame.ID, Name: frame.Name}

	if handler == nil {
		resp.Error = fmt.Sprintf("no handler for action '%s'", frame.Name)
		_ = e.push(resp)
		return
	}

	value, err := handler(context.Background(), frame.Payload)
	if err != nil {
		resp.Error = err.Error()
		_ = e.push(resp)
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to marshal response: %v", err)
		_ = e.push(resp)
		return
	}
	resp.Payload = data
	_ = e.push(resp)
}

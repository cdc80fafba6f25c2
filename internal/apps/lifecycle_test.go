package apps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskd/deskd/internal/hostbus"
	"github.com/deskd/deskd/internal/ipc/events"
	"github.com/deskd/deskd/pkg/ipc"
)

// channelSink funnels pushed messages into a channel so async bus delivery
// can be awaited.
type channelSink struct {
	pushed chan *ipc.Message
}

func (s *channelSink) Push(clientID string, msg *ipc.Message) error {
	s.pushed <- msg
	return nil
}

func TestForwardLifecycleEvents(t *testing.T) {
	log := newTestLogger()
	bus := hostbus.NewMemoryBus(log)
	defer bus.Close()

	sink := &channelSink{pushed: make(chan *ipc.Message, 4)}
	exchange := events.NewExchange(sink, log)
	exchange.Subscribe("launcher", ipc.EventAppStarted)
	exchange.Subscribe("launcher", ipc.EventAppStopped)

	require.NoError(t, ForwardLifecycleEvents(bus, events.NewEmitter("shell", exchange)))

	registry := NewRegistry(bus, log)
	require.NoError(t, registry.Install(notesManifest()))

	_, err := registry.MarkStarted(context.Background(), "notes")
	require.NoError(t, err)

	select {
	case msg := <-sink.pushed:
		assert.Equal(t, ipc.EventAppStarted, msg.Command)
		var payload map[string]string
		require.NoError(t, msg.ParsePayload(&payload))
		assert.Equal(t, "notes", payload["app_id"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for shell/appStarted")
	}

	registry.MarkStopped(context.Background(), "notes")

	select {
	case msg := <-sink.pushed:
		assert.Equal(t, ipc.EventAppStopped, msg.Command)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for shell/appStopped")
	}
}

func TestForwardLifecycleEvents_IgnoresEventsWithoutAppID(t *testing.T) {
	log := newTestLogger()
	bus := hostbus.NewMemoryBus(log)
	defer bus.Close()

	sink := &channelSink{pushed: make(chan *ipc.Message, 4)}
	exchange := events.NewExchange(sink, log)
	exchange.Subscribe("launcher", ipc.EventAppStarted)

	require.NoError(t, ForwardLifecycleEvents(bus, events.NewEmitter("shell", exchange)))

	event := hostbus.NewEvent("app.started", "test", nil)
	require.NoError(t, bus.Publish(context.Background(), hostbus.SubjectAppStarted, event))

	select {
	case msg := <-sink.pushed:
		t.Fatalf("unexpected forwarded event %q", msg.Command)
	case <-time.After(50 * time.Millisecond):
	}
}

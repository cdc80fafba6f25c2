package hostbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deskd/deskd/internal/common/logger"
)

func newTestLogger() *logger.Logger {
	log, _ := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console"})
	return log
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	received := make(chan *Event, 1)
	sub, err := bus.Subscribe(SubjectAppStarted, func(ctx context.Context, event *Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	event := NewEvent(SubjectAppStarted, "apps", map[string]interface{}{"app_id": "notes"})
	if err := bus.Publish(context.Background(), SubjectAppStarted, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.AppID() != "notes" {
			t.Errorf("AppID() = %q, want %q", got.AppID(), "notes")
		}
		if got.Source != "apps" {
			t.Errorf("Source = %q, want %q", got.Source, "apps")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestMemoryBus_SubjectIsolation(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	var count int32
	_, err := bus.Subscribe(SubjectAppStopped, func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	event := NewEvent(SubjectAppStarted, "apps", nil)
	if err := bus.Publish(context.Background(), SubjectAppStarted, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&count); n != 0 {
		t.Errorf("handler fired %d times for an unrelated subject", n)
	}
}

func TestMemoryBus_WildcardSingleToken(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	received := make(chan string, 4)
	_, err := bus.Subscribe("deskd.app.*", func(ctx context.Context, event *Event) error {
		received <- event.Type
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for _, subject := range []string{SubjectAppStarted, SubjectAppStopped} {
		if err := bus.Publish(context.Background(), subject, NewEvent(subject, "test", nil)); err != nil {
			t.Fatalf("Publish(%s) failed: %v", subject, err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for wildcard-matched event")
		}
	}

	// A deeper subject is not matched by a single-token wildcard.
	if err := bus.Publish(context.Background(), "deskd.app.started.extra", NewEvent("x", "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case <-received:
		t.Error("single-token wildcard matched a multi-token tail")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_WildcardTail(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	var count int32
	_, err := bus.Subscribe("deskd.>", func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	subjects := []string{SubjectAppStarted, SubjectAppStopped, "deskd.storage.compacted"}
	for _, subject := range subjects {
		if err := bus.Publish(context.Background(), subject, NewEvent(subject, "test", nil)); err != nil {
			t.Fatalf("Publish(%s) failed: %v", subject, err)
		}
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&count) < int32(len(subjects)) {
		select {
		case <-deadline:
			t.Fatalf("received %d events, want %d", atomic.LoadInt32(&count), len(subjects))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMemoryBus_Unsubscribe(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	var count int32
	sub, err := bus.Subscribe(SubjectAppStarted, func(ctx context.Context, event *Event) error {
		atomic.AddInt32(&count, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if !sub.IsValid() {
		t.Error("subscription should be valid before Unsubscribe")
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if sub.IsValid() {
		t.Error("subscription should be invalid after Unsubscribe")
	}

	if err := bus.Publish(context.Background(), SubjectAppStarted, NewEvent(SubjectAppStarted, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&count); n != 0 {
		t.Errorf("handler fired %d times after unsubscribe", n)
	}
}

func TestMemoryBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	var count int32
	for i := 0; i < 3; i++ {
		if _, err := bus.Subscribe(SubjectAppStopped, func(ctx context.Context, event *Event) error {
			atomic.AddInt32(&count, 1)
			return nil
		}); err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
	}

	if err := bus.Publish(context.Background(), SubjectAppStopped, NewEvent(SubjectAppStopped, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&count) < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 3 subscribers fired", atomic.LoadInt32(&count))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMemoryBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())
	defer bus.Close()

	errored := make(chan struct{}, 1)
	delivered := make(chan struct{}, 1)

	bus.Subscribe(SubjectAppStopped, func(ctx context.Context, event *Event) error {
		errored <- struct{}{}
		return context.Canceled
	})
	bus.Subscribe(SubjectAppStopped, func(ctx context.Context, event *Event) error {
		delivered <- struct{}{}
		return nil
	})

	if err := bus.Publish(context.Background(), SubjectAppStopped, NewEvent(SubjectAppStopped, "test", nil)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for name, ch := range map[string]chan struct{}{"erroring": errored, "healthy": delivered} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s handler", name)
		}
	}
}

func TestMemoryBus_ClosedBusRejectsOperations(t *testing.T) {
	bus := NewMemoryBus(newTestLogger())

	if !bus.IsConnected() {
		t.Error("new bus should report connected")
	}

	bus.Close()

	if bus.IsConnected() {
		t.Error("closed bus should report disconnected")
	}
	if err := bus.Publish(context.Background(), SubjectAppStarted, NewEvent(SubjectAppStarted, "test", nil)); err == nil {
		t.Error("expected Publish on closed bus to fail")
	}
	if _, err := bus.Subscribe(SubjectAppStarted, func(ctx context.Context, event *Event) error { return nil }); err == nil {
		t.Error("expected Subscribe on closed bus to fail")
	}
}

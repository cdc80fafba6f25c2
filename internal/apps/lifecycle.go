package apps

import (
	"context"

	"github.com/deskd/deskd/internal/hostbus"
	"github.com/deskd/deskd/internal/ipc/events"
)

// ForwardLifecycleEvents mirrors app lifecycle from the host bus onto the
// shell event namespace, so subscribed frontends (launcher, taskbar) observe
// starts and stops as shell/appStarted and shell/appStopped.
func ForwardLifecycleEvents(bus hostbus.Bus, emitter *events.Emitter) error {
	forward := func(eventName string) hostbus.EventHandler {
		return func(ctx context.Context, event *hostbus.Event) error {
			if appID := event.AppID(); appID != "" {
				emitter.Notify(eventName, map[string]string{"app_id": appID})
			}
			return nil
		}
	}

	if _, err := bus.Subscribe(hostbus.SubjectAppStarted, forward("appStarted")); err != nil {
		return err
	}
	if _, err := bus.Subscribe(hostbus.SubjectAppStopped, forward("appStopped")); err != nil {
		return err
	}
	return nil
}

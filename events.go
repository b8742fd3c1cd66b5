package hogarfix

// Module lifecycle transitions are emitted as CloudEvents so external
// systems (audit trails, admin dashboards) can observe the runtime without
// coupling to it.

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// EventType constants for runtime lifecycle events, using reverse domain
// notation per the CloudEvents specification.
const (
	EventTypeModuleRegistered   = "com.hogarfix.module.registered"
	EventTypeModuleLoaded       = "com.hogarfix.module.loaded"
	EventTypeModuleUnloaded     = "com.hogarfix.module.unloaded"
	EventTypeModuleLoadFailed   = "com.hogarfix.module.load_failed"
	EventTypeModuleUnregistered = "com.hogarfix.module.unregistered"
)

// EventSource is the CloudEvents source attribute for runtime events.
const EventSource = "hogarfix/module-runtime"

// Observer receives runtime lifecycle events. Observers should return
// quickly; a failing observer is logged and never blocks the runtime.
type Observer interface {
	// OnEvent is called for each emitted lifecycle event.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a stable identifier used for registration
	// tracking and debugging.
	ObserverID() string
}

// FunctionalObserver adapts a plain function to the Observer interface.
type FunctionalObserver struct {
	id      string
	handler func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an Observer backed by the given function.
func NewFunctionalObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) Observer {
	return &FunctionalObserver{id: id, handler: handler}
}

func (f *FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FunctionalObserver) ObserverID() string {
	return f.id
}

// NewModuleEvent builds a CloudEvent for a module lifecycle transition.
// The module slug is always present in the event data.
func NewModuleEvent(eventType, slug string, data map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(EventSource)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	payload := map[string]any{"slug": slug}
	for k, v := range data {
		payload[k] = v
	}
	_ = event.SetData(cloudevents.ApplicationJSON, payload)

	return event
}

// newEventID generates a UUIDv7 event id; v7 embeds a timestamp which keeps
// event ids time-ordered. Falls back to v4 if v7 generation fails.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

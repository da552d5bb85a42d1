// Package lifecycle publishes plugin and service lifecycle transitions as
// CloudEvents to registered observers.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event is an alias for the CloudEvents Event type.
type Event = cloudevents.Event

// Event types emitted by the plugin manager and the service registry.
const (
	EventTypePluginRegistered  = "io.modhost.plugin.registered"
	EventTypePluginInitialized = "io.modhost.plugin.initialized"
	EventTypePluginFailed      = "io.modhost.plugin.failed"
	EventTypePluginStarted     = "io.modhost.plugin.started"
	EventTypeManagerShutdown   = "io.modhost.manager.shutdown"
	EventTypeServiceStarted    = "io.modhost.service.started"
	EventTypeServiceStopped    = "io.modhost.service.stopped"
)

// NewEvent creates a CloudEvent with a time-ordered id.
func NewEvent(eventType, source string, data any) Event {
	event := cloudevents.NewEvent()
	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// newEventID prefers UUIDv7 so that ids sort by emission time.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Observer receives lifecycle events.
type Observer interface {
	// OnEvent is called synchronously for every matching event. It should
	// return quickly; an error or panic is logged and otherwise ignored.
	OnEvent(ctx context.Context, event Event) error
	// ObserverID identifies the observer for registration tracking.
	ObserverID() string
}

// ObserverFunc is an Observer backed by a function.
type ObserverFunc struct {
	ID      string
	Handler func(ctx context.Context, event Event) error
}

// OnEvent calls the handler.
func (f ObserverFunc) OnEvent(ctx context.Context, event Event) error {
	return f.Handler(ctx, event)
}

// ObserverID returns f.ID.
func (f ObserverFunc) ObserverID() string { return f.ID }

// Validate checks an event against the CloudEvents specification.
func Validate(event Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("cloudevent validation failed: %w", err)
	}
	return nil
}

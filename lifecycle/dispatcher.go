package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhost/logging"
)

var (
	// ErrNilObserver is returned when registering a nil observer.
	ErrNilObserver = errors.New("observer cannot be nil")
)

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type registration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// Dispatcher fans events out to registered observers. A nil *Dispatcher is
// valid and drops every event.
type Dispatcher struct {
	mu        sync.RWMutex
	observers map[string]*registration
	logger    logging.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		observers: make(map[string]*registration),
		logger:    logging.With(logger, "component", "events"),
	}
}

// RegisterObserver adds an observer. With no eventTypes the observer
// receives every event. Registering an id again replaces the earlier
// registration.
func (d *Dispatcher) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrNilObserver
	}
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers[observer.ObserverID()] = &registration{
		observer:     observer,
		eventTypes:   types,
		registeredAt: time.Now(),
	}
	d.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. Unknown ids are ignored.
func (d *Dispatcher) UnregisterObserver(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, id)
}

// Observers lists the registered observers ordered by id.
func (d *Dispatcher) Observers() []ObserverInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(d.observers))
	for id, reg := range d.observers {
		types := make([]string, 0, len(reg.eventTypes))
		for t := range reg.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{ID: id, EventTypes: types, RegisteredAt: reg.registeredAt})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].ID < info[j].ID })
	return info
}

// Emit builds an event and delivers it.
func (d *Dispatcher) Emit(ctx context.Context, eventType, source string, data any) {
	if d == nil {
		return
	}
	d.Notify(ctx, NewEvent(eventType, source, data))
}

// Notify delivers event to every interested observer in turn. Observer
// errors and panics are logged and do not reach the caller.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if err := Validate(event); err != nil {
		d.logger.Error("Invalid CloudEvent", "eventType", event.Type(), "error", err)
		return
	}

	d.mu.RLock()
	targets := make([]Observer, 0, len(d.observers))
	for _, reg := range d.observers {
		if len(reg.eventTypes) > 0 && !reg.eventTypes[event.Type()] {
			continue
		}
		targets = append(targets, reg.observer)
	}
	d.mu.RUnlock()

	for _, o := range targets {
		d.deliver(ctx, o, event)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, o Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Observer panicked", "observerID", o.ObserverID(), "event", event.Type(), "panic", r)
		}
	}()
	if err := o.OnEvent(ctx, event); err != nil {
		d.logger.Error("Observer error", "observerID", o.ObserverID(), "event", event.Type(), "error", err)
	}
}

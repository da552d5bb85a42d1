package service

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/policy"
)

// Startable is implemented by services that take part in Registry.Start.
type Startable interface {
	Start(ctx context.Context) error
	// StartPriority orders startup; higher values start first.
	StartPriority() int
}

// Shutdownable is implemented by services that take part in
// Registry.Shutdown.
type Shutdownable interface {
	Shutdown(ctx context.Context) error
	// ShutdownPriority orders shutdown; higher values stop first.
	ShutdownPriority() int
}

// Option configures a Registry.
type Option func(*Registry)

// WithEnforcer sets the decision point consulted before every operation.
func WithEnforcer(e *policy.Enforcer) Option {
	return func(r *Registry) { r.enforcer = e }
}

// WithLogger sets the registry logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) { r.logger = logging.With(l, "component", "services") }
}

// WithEvents publishes service start and stop events to d.
func WithEvents(d *lifecycle.Dispatcher) Option {
	return func(r *Registry) { r.events = d }
}

// Registry holds one slot per service type.
type Registry struct {
	slots    *sync.Map // reflect.Type -> *Slot
	enforcer *policy.Enforcer
	events   *lifecycle.Dispatcher
	logger   logging.Logger
	origin   policy.Origin
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		slots:  &sync.Map{},
		logger: logging.With(logging.Nop(), "component", "services"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// As returns a handle on the same slots whose every call is attributed to
// origin, whatever origin the caller's context carries.
func (r *Registry) As(origin policy.Origin) *Registry {
	bound := *r
	bound.origin = origin
	return &bound
}

func (r *Registry) bind(ctx context.Context) context.Context {
	if r.origin == nil {
		return ctx
	}
	return policy.WithOrigin(ctx, r.origin)
}

// Service returns the slot for typ, creating an empty one on first access.
// It requires service-registry access.
func (r *Registry) Service(ctx context.Context, typ reflect.Type) (*Slot, error) {
	ctx = r.bind(ctx)
	if err := r.enforcer.Check(ctx, capability.ServiceRegistryAccess); err != nil {
		return nil, err
	}
	if typ == nil {
		return nil, ErrNilServiceType
	}
	return r.slot(typ), nil
}

func (r *Registry) slot(typ reflect.Type) *Slot {
	if v, ok := r.slots.Load(typ); ok {
		return v.(*Slot)
	}
	v, _ := r.slots.LoadOrStore(typ, newSlot(typ))
	return v.(*Slot)
}

// Services returns a live read-only view over all slots. It requires
// service-registry access.
func (r *Registry) Services(ctx context.Context) (View, error) {
	ctx = r.bind(ctx)
	if err := r.enforcer.Check(ctx, capability.ServiceRegistryAccess); err != nil {
		return View{}, err
	}
	return View{r: r}, nil
}

// Start starts every bound Startable in descending priority order. It
// requires service-registry start-or-stop. Failures are logged and do not
// stop the remaining services.
func (r *Registry) Start(ctx context.Context) error {
	ctx = r.bind(ctx)
	if err := r.enforcer.Check(ctx, capability.ServiceRegistryStartOrStop); err != nil {
		return err
	}
	r.logger.Info("Starting services...")
	began := time.Now()

	type target struct {
		slot *Slot
		svc  Startable
	}
	var targets []target
	for _, s := range r.snapshot() {
		if svc, ok := s.Instance().(Startable); ok {
			targets = append(targets, target{s, svc})
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].svc.StartPriority() > targets[j].svc.StartPriority()
	})

	for _, t := range targets {
		r.logger.Debug("Starting service", "service", t.slot.Name())
		if err := call(func() error { return t.svc.Start(ctx) }); err != nil {
			r.logger.Warn("Service failed to start", "service", t.slot.Name(), "errorType", fmt.Sprintf("%T", err), "error", err)
			continue
		}
		r.events.Emit(ctx, lifecycle.EventTypeServiceStarted, "services", map[string]string{"service": t.slot.Name()})
	}
	r.logger.Info("Services started", "took", time.Since(began))
	return nil
}

// Shutdown stops every bound Shutdownable in descending priority order. It
// requires service-registry start-or-stop.
func (r *Registry) Shutdown(ctx context.Context) error {
	ctx = r.bind(ctx)
	if err := r.enforcer.Check(ctx, capability.ServiceRegistryStartOrStop); err != nil {
		return err
	}
	r.logger.Info("Shutting down services...")
	began := time.Now()

	type target struct {
		slot *Slot
		svc  Shutdownable
	}
	var targets []target
	for _, s := range r.snapshot() {
		if svc, ok := s.Instance().(Shutdownable); ok {
			targets = append(targets, target{s, svc})
		}
	}
	sort.SliceStable(targets, func(i, j int) bool {
		return targets[i].svc.ShutdownPriority() > targets[j].svc.ShutdownPriority()
	})

	for _, t := range targets {
		r.logger.Debug("Shutting down service", "service", t.slot.Name())
		if err := call(func() error { return t.svc.Shutdown(ctx) }); err != nil {
			r.logger.Warn("Service failed to shut down", "service", t.slot.Name(), "errorType", fmt.Sprintf("%T", err), "error", err)
			continue
		}
		r.events.Emit(ctx, lifecycle.EventTypeServiceStopped, "services", map[string]string{"service": t.slot.Name()})
	}
	r.logger.Info("Services shut down", "took", time.Since(began))
	return nil
}

// snapshot returns the slots ordered by type name, which makes priority
// ties deterministic.
func (r *Registry) snapshot() []*Slot {
	var slots []*Slot
	r.slots.Range(func(_, v any) bool {
		slots = append(slots, v.(*Slot))
		return true
	})
	sort.Slice(slots, func(i, j int) bool { return slots[i].Name() < slots[j].Name() })
	return slots
}

// call runs fn and turns a panic into an error wrapping ErrServicePanic.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrServicePanic, r)
		}
	}()
	return fn()
}

// View is a read-only view over the slots of a registry. It reflects slots
// created after it was obtained.
type View struct {
	r *Registry
}

// Slots returns the current slots ordered by type name.
func (v View) Slots() []*Slot {
	if v.r == nil {
		return nil
	}
	return v.r.snapshot()
}

// Len returns the current number of slots.
func (v View) Len() int { return len(v.Slots()) }

// Lookup returns the slot for typ without creating it.
func (v View) Lookup(typ reflect.Type) (*Slot, bool) {
	if v.r == nil {
		return nil, false
	}
	s, ok := v.r.slots.Load(typ)
	if !ok {
		return nil, false
	}
	return s.(*Slot), true
}

package service

import (
	"fmt"
	"reflect"
)

// Ref is a typed handle on a slot. Obtaining a Ref never fails for lack of
// an implementation; Get does.
type Ref[T any] struct {
	slot *Slot
}

// NewRef wraps a slot keyed by T.
func NewRef[T any](slot *Slot) (Ref[T], error) {
	if want := reflect.TypeFor[T](); slot == nil || slot.typ != want {
		return Ref[T]{}, fmt.Errorf("%w: slot is not keyed by %s", ErrIncompatibleImplementation, typeName(want))
	}
	return Ref[T]{slot: slot}, nil
}

// Get returns the bound implementation.
func (r Ref[T]) Get() (T, error) {
	var zero T
	if r.slot == nil {
		return zero, fmt.Errorf("%w: %s", ErrServiceUnbound, typeName(reflect.TypeFor[T]()))
	}
	v, ok := r.slot.Instance().(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrServiceUnbound, r.slot.Name())
	}
	return v, nil
}

// MustGet is like Get but panics when unbound.
func (r Ref[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Slot returns the underlying slot.
func (r Ref[T]) Slot() *Slot { return r.slot }

// Bind binds impl to the referenced slot.
func (r Ref[T]) Bind(impl T) error {
	if r.slot == nil {
		return fmt.Errorf("%w: %s", ErrServiceUnbound, typeName(reflect.TypeFor[T]()))
	}
	return r.slot.Bind(impl)
}

// slotRef is implemented by every *Ref[T]; factories are introspected
// through it.
type slotRef interface {
	serviceType() reflect.Type
	attach(*Slot)
}

func (r Ref[T]) serviceType() reflect.Type { return reflect.TypeFor[T]() }

func (r *Ref[T]) attach(s *Slot) { r.slot = s }

var slotRefType = reflect.TypeFor[slotRef]()

// isRefType reports whether t is some Ref[T].
func isRefType(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(slotRefType)
}

package service

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

// Slot is the binding point for one service type. Its type never changes
// once created; the bound implementation may be replaced.
type Slot struct {
	typ      reflect.Type
	instance atomic.Pointer[binding]
}

type binding struct{ value any }

func newSlot(typ reflect.Type) *Slot {
	return &Slot{typ: typ}
}

// Type returns the service type the slot is keyed by.
func (s *Slot) Type() reflect.Type { return s.typ }

// Name returns the service type name.
func (s *Slot) Name() string { return typeName(s.typ) }

// Instance returns the bound implementation or nil.
func (s *Slot) Instance() any {
	if b := s.instance.Load(); b != nil {
		return b.value
	}
	return nil
}

// Bound reports whether an implementation is bound.
func (s *Slot) Bound() bool { return s.instance.Load() != nil }

// Bind sets the implementation. A nil impl clears the binding.
func (s *Slot) Bind(impl any) error {
	if impl == nil {
		s.instance.Store(nil)
		return nil
	}
	if t := reflect.TypeOf(impl); !t.AssignableTo(s.typ) {
		return fmt.Errorf("%w: %s does not implement %s", ErrIncompatibleImplementation, typeName(t), s.Name())
	}
	s.instance.Store(&binding{value: impl})
	return nil
}

// String returns the service type name.
func (s *Slot) String() string { return s.Name() }

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.PkgPath() != "" && t.Name() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

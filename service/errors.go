package service

import "errors"

var (
	// ErrServiceUnbound is returned by Ref.Get when the slot has no
	// implementation yet.
	ErrServiceUnbound = errors.New("service has no implementation")
	// ErrIncompatibleImplementation is returned when binding a value that
	// does not implement the slot's type.
	ErrIncompatibleImplementation = errors.New("implementation does not satisfy service type")
	// ErrNilServiceType is returned when a slot is requested for a nil type.
	ErrNilServiceType = errors.New("service type is nil")
	// ErrInvalidPreferredFactory is returned when the preferred factory of a
	// blueprint declares parameters that are not service references.
	ErrInvalidPreferredFactory = errors.New("preferred factory declares invalid parameters")
	// ErrInvalidFactory is returned for factories that are not functions
	// returning the blueprint type.
	ErrInvalidFactory = errors.New("invalid factory")
	// ErrServicePanic wraps a panic raised by a service hook or factory.
	ErrServicePanic = errors.New("service panicked")
)

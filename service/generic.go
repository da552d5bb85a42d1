package service

import (
	"context"
	"reflect"
)

// Get returns a reference to the slot keyed by T.
func Get[T any](ctx context.Context, r *Registry) (Ref[T], error) {
	s, err := r.Service(ctx, reflect.TypeFor[T]())
	if err != nil {
		return Ref[T]{}, err
	}
	return Ref[T]{slot: s}, nil
}

// Bind binds impl to the slot keyed by T.
func Bind[T any](ctx context.Context, r *Registry, impl T) error {
	ref, err := Get[T](ctx, r)
	if err != nil {
		return err
	}
	return ref.Bind(impl)
}

// Lookup returns the implementation bound to T.
func Lookup[T any](ctx context.Context, r *Registry) (T, error) {
	ref, err := Get[T](ctx, r)
	if err != nil {
		var zero T
		return zero, err
	}
	return ref.Get()
}

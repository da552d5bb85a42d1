// Package service implements the type-keyed service registry plugins use to
// share functionality.
//
// A Slot is created lazily the first time a service type is requested and
// can be bound to an implementation at any later point, so consumers may be
// constructed before their providers. Consumers hold a Ref[T] and resolve
// the binding only when they use it.
package service

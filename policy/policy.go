// Package policy implements the decision point consulted before every
// sensitive registry operation.
//
// The caller of an operation is identified by an Origin carried in the
// context.Context. Calls without an origin come from the host itself and are
// allowed everything; calls made on behalf of a plugin carry that plugin's
// loader, whose bound capability set decides the outcome.
package policy

import (
	"context"

	"github.com/GoCodeAlone/modhost/capability"
)

// Origin is the isolation context a call is made from.
type Origin interface {
	// OriginName identifies the origin in log records and denial errors.
	OriginName() string
	// Capabilities returns the capabilities bound to this origin. An origin
	// with no binding yet returns an empty set.
	Capabilities() capability.Set
}

// Policy maps an origin to a decision for a required capability.
type Policy interface {
	Implies(origin Origin, required capability.Capability) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(origin Origin, required capability.Capability) bool

// Implies calls f.
func (f PolicyFunc) Implies(origin Origin, required capability.Capability) bool {
	return f(origin, required)
}

// Contextual is the default policy. The host (nil origin) is all-capable;
// any other origin is allowed exactly what its bound capability set implies.
type Contextual struct{}

// Implies implements Policy.
func (Contextual) Implies(origin Origin, required capability.Capability) bool {
	if origin == nil {
		return true
	}
	return origin.Capabilities().Implies(required)
}

type originKey struct{}

// WithOrigin returns a context whose calls are attributed to origin.
func WithOrigin(ctx context.Context, origin Origin) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin carried by ctx, or nil for host calls.
func OriginFrom(ctx context.Context) Origin {
	if ctx == nil {
		return nil
	}
	origin, _ := ctx.Value(originKey{}).(Origin)
	return origin
}

// HostContext strips any origin from ctx so that the returned context is
// treated as a host call.
func HostContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, originKey{}, nil)
}

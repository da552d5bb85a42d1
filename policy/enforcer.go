package policy

import (
	"context"
	"sync"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/logging"
)

// Option configures an installation.
type Option func(*Enforcer)

// WithDegraded puts the decision point into degraded mode: every check is
// allowed. Only meant for controlled environments.
func WithDegraded(degraded bool) Option {
	return func(e *Enforcer) {
		e.degraded = degraded
	}
}

// Enforcer is the decision point. A host creates exactly one and installs a
// policy into it once during boot. Until a policy is installed no checks are
// enforced.
type Enforcer struct {
	mu        sync.RWMutex
	policy    Policy
	installed bool
	degraded  bool
	logger    logging.Logger
}

// NewEnforcer creates an enforcer with no policy installed.
func NewEnforcer(logger logging.Logger) *Enforcer {
	return &Enforcer{logger: logging.With(logger, "component", "policy")}
}

// Install activates p. A second call fails with ErrReplaceDenied and leaves
// the installed policy untouched.
func (e *Enforcer) Install(p Policy, opts ...Option) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.installed {
		return ErrReplaceDenied
	}
	if p == nil {
		p = Contextual{}
	}
	for _, opt := range opts {
		opt(e)
	}
	e.policy = p
	e.installed = true

	if e.degraded {
		e.logger.Warn("**********************************************************")
		e.logger.Warn("* SECURITY ENFORCEMENT IS DISABLED: all checks are allowed *")
		e.logger.Warn("* Do not run untrusted plugins with this configuration.   *")
		e.logger.Warn("**********************************************************")
	} else {
		e.logger.Info("Policy installed")
	}
	return nil
}

// Installed reports whether a policy has been installed.
func (e *Enforcer) Installed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.installed
}

// Degraded reports whether enforcement is disabled.
func (e *Enforcer) Degraded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.degraded
}

// Check returns a *DeniedError when the origin carried by ctx does not hold
// required.
func (e *Enforcer) Check(ctx context.Context, required capability.Capability) error {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	installed, degraded, p := e.installed, e.degraded, e.policy
	e.mu.RUnlock()

	if !installed || degraded {
		return nil
	}
	origin := OriginFrom(ctx)
	if p.Implies(origin, required) {
		return nil
	}
	name := "host"
	if origin != nil {
		name = origin.OriginName()
	}
	e.logger.Debug("Capability check denied", "origin", name, "required", required.String())
	return &DeniedError{Origin: name, Required: required}
}

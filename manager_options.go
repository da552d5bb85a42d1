package modhost

import (
	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/policy"
)

// DefaultDataDirectory is the root under which plugin data directories are
// created when no other root is configured.
const DefaultDataDirectory = "plugins"

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDataDirectory sets the root of the per-plugin data directories.
func WithDataDirectory(dir string) ManagerOption {
	return func(m *Manager) { m.dataDir = dir }
}

// WithLogger sets the manager's logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) { m.baseLogger = logger }
}

// WithEnforcer sets the decision point consulted before every sensitive
// operation. Without one no checks are made.
func WithEnforcer(e *policy.Enforcer) ManagerOption {
	return func(m *Manager) { m.enforcer = e }
}

// WithHostSource replaces the host catalog used as second resolution tier
// and as code source of global plugins.
func WithHostSource(src loader.CodeSource) ManagerOption {
	return func(m *Manager) { m.host = src }
}

// WithEvents publishes plugin lifecycle events to d.
func WithEvents(d *lifecycle.Dispatcher) ManagerOption {
	return func(m *Manager) { m.events = d }
}

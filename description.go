package modhost

import (
	"sync/atomic"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/loader"
)

// State is the lifecycle state of a registered plugin.
type State int32

const (
	// StateRegistered indicates the plugin is registered but not yet initialized
	StateRegistered State = iota
	// StateInitializing indicates the initialize hook is running
	StateInitializing
	// StateActive indicates initialize completed without error
	StateActive
	// StateFailed indicates initialize failed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Description is the live wrapper around a registered plugin.
type Description struct {
	descriptor   Descriptor
	loader       *loader.Loader
	dependencies []*Description
	capabilities capability.Set
	global       bool
	dataDir      string
	instance     Plugin
	state        atomic.Int32
}

// Descriptor returns the plugin's declared identity.
func (d *Description) Descriptor() Descriptor { return d.descriptor }

// ID returns the plugin id.
func (d *Description) ID() string { return d.descriptor.ID }

// Loader returns the plugin's loader.
func (d *Description) Loader() *loader.Loader { return d.loader }

// Dependencies returns the resolved dependencies in declaration order.
func (d *Description) Dependencies() []*Description {
	return append([]*Description(nil), d.dependencies...)
}

// DependencyLoaders implements loader.Module.
func (d *Description) DependencyLoaders() []*loader.Loader {
	loaders := make([]*loader.Loader, len(d.dependencies))
	for i, dep := range d.dependencies {
		loaders[i] = dep.loader
	}
	return loaders
}

// Capabilities returns the capability set fixed at registration.
func (d *Description) Capabilities() capability.Set { return d.capabilities }

// Global reports whether the plugin was registered without a code source.
func (d *Description) Global() bool { return d.global }

// DataDirectory returns the absolute path of the plugin's data directory.
func (d *Description) DataDirectory() string { return d.dataDir }

// Instance returns the plugin entry point.
func (d *Description) Instance() Plugin { return d.instance }

// State returns the current lifecycle state.
func (d *Description) State() State { return State(d.state.Load()) }

// Active reports whether initialize completed without error.
func (d *Description) Active() bool { return d.State() == StateActive }

func (d *Description) setState(s State) { d.state.Store(int32(s)) }

// claim moves the plugin from registered to initializing. Only one caller
// wins.
func (d *Description) claim() bool {
	return d.state.CompareAndSwap(int32(StateRegistered), int32(StateInitializing))
}

func (d *Description) String() string { return d.descriptor.String() }

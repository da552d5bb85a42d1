// Package modhost is a host runtime for independently built plugins.
//
// Plugins are registered from a code source together with the identifier of
// the plugin inside it. Registration resolves declared dependencies against
// already registered plugins by version constraint, grants the plugin a
// fixed capability set and binds its loader. The Manager then drives every
// registered plugin through initialize and start; plugins share
// functionality through the service registry.
//
// Basic usage:
//
//	enforcer := policy.NewEnforcer(logger)
//	services := service.NewRegistry(service.WithEnforcer(enforcer))
//	manager := modhost.NewManager(modhost.WithEnforcer(enforcer))
//	if err := manager.Initialize(ctx, services); err != nil {
//		log.Fatal(err)
//	}
//	if _, err := manager.RegisterFile(ctx, "plugins/ext.zip", "ext", nil); err != nil {
//		log.Fatal(err)
//	}
//	_ = manager.InitializePlugins(ctx)
//	_ = services.Start(ctx)
//	_ = manager.StartPlugins(ctx)
package modhost

import "context"

// Plugin is the contract every plugin entry point implements.
//
// Both hooks receive a context attributed to the plugin: registry and
// service operations made with it are checked against the plugin's
// capabilities.
type Plugin interface {
	// Initialize is called once after all plugins of a batch have been
	// registered. This is the place to bind provided services and to take
	// references on consumed ones. A returned error or panic leaves the
	// plugin inactive.
	Initialize(ctx context.Context, pc *Context) error

	// Start is called after every plugin has been initialized and the
	// services have been started. Errors are logged only.
	Start(ctx context.Context, pc *Context) error
}

// PluginFunc adapts plain functions to Plugin. Either hook may be nil.
type PluginFunc struct {
	OnInitialize func(ctx context.Context, pc *Context) error
	OnStart      func(ctx context.Context, pc *Context) error
}

// Initialize calls OnInitialize.
func (p PluginFunc) Initialize(ctx context.Context, pc *Context) error {
	if p.OnInitialize == nil {
		return nil
	}
	return p.OnInitialize(ctx, pc)
}

// Start calls OnStart.
func (p PluginFunc) Start(ctx context.Context, pc *Context) error {
	if p.OnStart == nil {
		return nil
	}
	return p.OnStart(ctx, pc)
}

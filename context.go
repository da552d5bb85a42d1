package modhost

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

// Context is the set of host handles a plugin receives. The registry
// handles it returns attribute every call to the plugin, so a plugin cannot
// act as the host by passing a context without an origin.
type Context struct {
	description *Description
	services    *service.Registry
	plugins     *PluginRegistry
	manager     *Manager
	logger      Logger
}

// Description returns the plugin's own description.
func (c *Context) Description() *Description { return c.description }

// Services returns the service registry bound to the plugin.
func (c *Context) Services() *service.Registry { return c.services }

// Plugins returns the plugin registry bound to the plugin.
func (c *Context) Plugins() *PluginRegistry { return c.plugins }

// Logger returns the host logger scoped to the plugin.
func (c *Context) Logger() Logger { return c.logger }

// DataFile opens name inside the plugin's data directory. The caller must
// hold the file capability matching flag; plugins are granted the whole
// data directory at registration.
func (c *Context) DataFile(ctx context.Context, name string, flag int, perm os.FileMode) (*os.File, error) {
	dir := c.description.DataDirectory()
	p := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, p); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDataFile, name)
	}

	required, err := capability.NewFile(p, fileActions(flag))
	if err != nil {
		return nil, err
	}
	if err := c.manager.enforcer.Check(ctx, required); err != nil {
		return nil, err
	}
	return os.OpenFile(p, flag, perm)
}

// RemoveDataFile deletes name from the plugin's data directory.
func (c *Context) RemoveDataFile(ctx context.Context, name string) error {
	dir := c.description.DataDirectory()
	p := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, p); err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrInvalidDataFile, name)
	}
	required, err := capability.NewFile(p, "delete")
	if err != nil {
		return err
	}
	if err := c.manager.enforcer.Check(ctx, required); err != nil {
		return err
	}
	return os.Remove(p)
}

func fileActions(flag int) string {
	var actions []string
	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return "read"
	}
	if flag&os.O_RDWR != 0 {
		actions = append(actions, "read")
	}
	actions = append(actions, "write")
	return strings.Join(actions, ",")
}

// pluginContext attributes ctx to the plugin described by d.
func pluginContext(ctx context.Context, d *Description) context.Context {
	return policy.WithOrigin(ctx, d.loader)
}

// PluginRegistry is a plugin's handle on the Manager. Every call runs with
// the owning plugin as origin, whatever origin ctx carries.
type PluginRegistry struct {
	manager *Manager
	owner   *Description
}

// GetPlugins is Manager.GetPlugins on behalf of the owner.
func (r *PluginRegistry) GetPlugins(ctx context.Context) ([]*Description, error) {
	return r.manager.GetPlugins(pluginContext(ctx, r.owner))
}

// GetPlugin is Manager.GetPlugin on behalf of the owner.
func (r *PluginRegistry) GetPlugin(ctx context.Context, id string) (*Description, error) {
	return r.manager.GetPlugin(pluginContext(ctx, r.owner), id)
}

// Register is Manager.Register on behalf of the owner.
func (r *PluginRegistry) Register(ctx context.Context, src loader.CodeSource, id string, supplier CapabilitySupplier) (*Description, error) {
	return r.manager.Register(pluginContext(ctx, r.owner), src, id, supplier)
}

// RegisterFile is Manager.RegisterFile on behalf of the owner.
func (r *PluginRegistry) RegisterFile(ctx context.Context, path, id string, supplier CapabilitySupplier) (*Description, error) {
	return r.manager.RegisterFile(pluginContext(ctx, r.owner), path, id, supplier)
}

// InitializePlugins is Manager.InitializePlugins on behalf of the owner.
func (r *PluginRegistry) InitializePlugins(ctx context.Context) error {
	return r.manager.InitializePlugins(pluginContext(ctx, r.owner))
}

// StartPlugins is Manager.StartPlugins on behalf of the owner.
func (r *PluginRegistry) StartPlugins(ctx context.Context) error {
	return r.manager.StartPlugins(pluginContext(ctx, r.owner))
}

// ActivatePlugin is Manager.ActivatePlugin on behalf of the owner.
func (r *PluginRegistry) ActivatePlugin(ctx context.Context, id string) error {
	return r.manager.ActivatePlugin(pluginContext(ctx, r.owner), id)
}

// Shutdown is Manager.Shutdown on behalf of the owner.
func (r *PluginRegistry) Shutdown(ctx context.Context) error {
	return r.manager.Shutdown(pluginContext(ctx, r.owner))
}

package modhost

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/config"
	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

// PlatformStatus represents the current status of a platform.
type PlatformStatus string

const (
	// PlatformStatusCreated indicates the platform has not been started
	PlatformStatusCreated PlatformStatus = "created"
	// PlatformStatusRunning indicates Start completed
	PlatformStatusRunning PlatformStatus = "running"
	// PlatformStatusStopped indicates Stop completed
	PlatformStatusStopped PlatformStatus = "stopped"
)

// PlatformOption configures a Platform.
type PlatformOption func(*Platform)

// WithPlatformLogger replaces the logger built from the host settings.
func WithPlatformLogger(l Logger) PlatformOption {
	return func(p *Platform) { p.logger = l }
}

// WithPolicy installs p instead of the contextual default policy.
func WithPolicy(pol policy.Policy) PlatformOption {
	return func(p *Platform) { p.policy = pol }
}

// WithPlatformHostSource replaces the host catalog.
func WithPlatformHostSource(src loader.CodeSource) PlatformOption {
	return func(p *Platform) { p.host = src }
}

// Platform wires the enforcer, the service registry and the plugin manager
// from the host settings and runs the plugin list through their lifecycle.
type Platform struct {
	cfg    *config.HostConfig
	logger Logger
	policy policy.Policy
	host   loader.CodeSource

	enforcer *policy.Enforcer
	events   *lifecycle.Dispatcher
	services *service.Registry
	manager  *Manager

	mu      sync.Mutex
	status  PlatformStatus
	watcher *config.Watcher
	stopped chan struct{}
}

// NewPlatform builds a platform. The policy is installed immediately; with
// cfg.Insecure it runs in degraded mode.
func NewPlatform(ctx context.Context, cfg *config.HostConfig, opts ...PlatformOption) (*Platform, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Platform{cfg: cfg, status: PlatformStatusCreated, stopped: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		zl, err := logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		p.logger = zl
	}

	p.enforcer = policy.NewEnforcer(p.logger)
	if err := p.enforcer.Install(p.policy, policy.WithDegraded(cfg.Insecure)); err != nil {
		return nil, err
	}
	p.events = lifecycle.NewDispatcher(p.logger)
	if err := p.events.RegisterObserver(lifecycle.NewLogObserver(p.logger)); err != nil {
		return nil, err
	}
	p.services = service.NewRegistry(
		service.WithEnforcer(p.enforcer),
		service.WithLogger(p.logger),
		service.WithEvents(p.events),
	)
	managerOpts := []ManagerOption{
		WithDataDirectory(cfg.DataDirectory),
		WithLogger(p.logger),
		WithEnforcer(p.enforcer),
		WithEvents(p.events),
	}
	if p.host != nil {
		managerOpts = append(managerOpts, WithHostSource(p.host))
	}
	p.manager = NewManager(managerOpts...)
	if err := p.manager.Initialize(policy.HostContext(ctx), p.services); err != nil {
		return nil, err
	}
	return p, nil
}

// Config returns the host settings.
func (p *Platform) Config() *config.HostConfig { return p.cfg }

// Manager returns the plugin manager.
func (p *Platform) Manager() *Manager { return p.manager }

// Services returns the service registry.
func (p *Platform) Services() *service.Registry { return p.services }

// Events returns the lifecycle event dispatcher.
func (p *Platform) Events() *lifecycle.Dispatcher { return p.events }

// Enforcer returns the installed decision point.
func (p *Platform) Enforcer() *policy.Enforcer { return p.enforcer }

// Logger returns the platform logger.
func (p *Platform) Logger() Logger { return p.logger }

// Status returns the current platform status.
func (p *Platform) Status() PlatformStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start registers the plugin list, initializes the plugins, starts the
// services and then the plugins. Registration failures are logged per
// entry and never abort the start.
func (p *Platform) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case PlatformStatusRunning:
		return ErrPlatformStarted
	case PlatformStatusStopped:
		return ErrShutdown
	}
	ctx = policy.HostContext(ctx)

	list, err := p.loadPluginList()
	if err != nil {
		return err
	}
	if list != nil {
		p.registerAll(ctx, list)
	}
	if err := p.manager.InitializePlugins(ctx); err != nil {
		return err
	}
	if err := p.services.Start(ctx); err != nil {
		return err
	}
	if err := p.manager.StartPlugins(ctx); err != nil {
		return err
	}

	if p.cfg.WatchPlugins {
		if err := p.watch(ctx); err != nil {
			p.logger.Warn("Plugin list is not watched", "file", p.cfg.PluginsFile, "error", err)
		}
	}
	p.status = PlatformStatusRunning
	p.logger.Info("Platform started")
	return nil
}

// Stop shuts the services down and then the plugin manager.
func (p *Platform) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PlatformStatusRunning {
		return ErrPlatformNotStarted
	}
	ctx = policy.HostContext(ctx)

	if p.watcher != nil {
		_ = p.watcher.Close()
		p.watcher = nil
	}
	var errs []error
	if err := p.services.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	p.status = PlatformStatusStopped
	close(p.stopped)
	p.logger.Info("Platform stopped")
	return errors.Join(errs...)
}

// SafeStop stops the platform if it is running and is a no-op otherwise.
func (p *Platform) SafeStop(ctx context.Context) error {
	if err := p.Stop(ctx); err != nil && !errors.Is(err, ErrPlatformNotStarted) {
		return err
	}
	return nil
}

// Wait blocks until the platform is stopped or ctx is done.
func (p *Platform) Wait(ctx context.Context) error {
	select {
	case <-p.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Platform) loadPluginList() (*config.PluginList, error) {
	list, err := config.LoadPluginList(p.cfg.PluginsFile)
	if errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Plugin list not found, no plugins installed", "file", p.cfg.PluginsFile)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(list.Plugins) == 0 {
		p.logger.Warn("No plugins installed", "file", p.cfg.PluginsFile)
	}
	return list, nil
}

func (p *Platform) registerAll(ctx context.Context, list *config.PluginList) {
	for _, entry := range list.Plugins {
		if err := p.register(ctx, entry); err != nil {
			p.logger.Error("Failed to register plugin", "plugin", entry.ID, "file", entry.File, "error", err)
		}
	}
}

func (p *Platform) register(ctx context.Context, entry config.PluginEntry) error {
	_, err := p.manager.RegisterFile(ctx, entry.Source(p.cfg.PluginsFile), entry.ID, func(*loader.Loader) ([]capability.Capability, error) {
		return entry.Capabilities()
	})
	return err
}

func (p *Platform) watch(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	w, err := config.NewWatcher(p.cfg.PluginsFile, p.logger, func(list *config.PluginList) {
		p.onPluginListChange(ctx, list)
	})
	if err != nil {
		return err
	}
	p.watcher = w
	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, config.ErrWatcherClosed) {
			p.logger.Warn("Plugin list watcher stopped", "error", err)
		}
	}()
	return nil
}

// onPluginListChange registers and activates newly listed plugins, reading
// their archives afresh. Removed entries stay loaded until the next restart.
func (p *Platform) onPluginListChange(ctx context.Context, list *config.PluginList) {
	listed := make(map[string]bool, len(list.Plugins))
	for _, entry := range list.Plugins {
		listed[entry.ID] = true
		if _, err := p.manager.GetPlugin(ctx, entry.ID); err == nil {
			continue
		}
		p.manager.forgetArchive(entry.Source(p.cfg.PluginsFile))
		if err := p.register(ctx, entry); err != nil {
			p.logger.Error("Failed to register plugin", "plugin", entry.ID, "file", entry.File, "error", err)
			continue
		}
		if err := p.manager.ActivatePlugin(ctx, entry.ID); err != nil {
			p.logger.Error("Failed to activate plugin", "plugin", entry.ID, "error", err)
		}
	}

	plugins, err := p.manager.GetPlugins(ctx)
	if err != nil {
		return
	}
	for _, d := range plugins {
		if !listed[d.ID()] {
			p.logger.Warn("Plugin removed from plugin list, restart required to unload it", "plugin", d.ID())
		}
	}
}

package modhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/metadata"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

// CapabilitySupplier returns the additional capabilities granted to a
// plugin. It receives the plugin's loader before the plugin is bound.
type CapabilitySupplier func(l *loader.Loader) ([]capability.Capability, error)

// Grant returns a supplier that always grants caps.
func Grant(caps ...capability.Capability) CapabilitySupplier {
	return func(*loader.Loader) ([]capability.Capability, error) { return caps, nil }
}

type managerState int

const (
	stateUninitialized managerState = iota
	stateInitialized
	stateShutdown
)

// Manager is the plugin registry and lifecycle orchestrator.
type Manager struct {
	dataDir    string
	host       loader.CodeSource
	enforcer   *policy.Enforcer
	events     *lifecycle.Dispatcher
	baseLogger Logger
	logger     Logger

	documents metadata.Cache

	mu       sync.RWMutex
	state    managerState
	services *service.Registry
	plugins  map[string]*Context
	order    []string
}

// NewManager creates an uninitialized manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		dataDir: DefaultDataDirectory,
		plugins: make(map[string]*Context),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.host == nil {
		m.host = loader.Host()
	}
	m.logger = logging.With(m.baseLogger, "component", "plugins")
	return m
}

// Initialize attaches the service registry and makes the manager
// operational. It requires module-registry manage and succeeds only once.
func (m *Manager) Initialize(ctx context.Context, services *service.Registry) error {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryManage); err != nil {
		return err
	}
	if services == nil {
		return ErrNilServiceRegistry
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != stateUninitialized {
		return ErrAlreadyInitialized
	}
	m.services = services
	m.state = stateInitialized
	abs, _ := filepath.Abs(m.dataDir)
	m.logger.Info("Plugin manager initialized", "dataDirectory", abs)
	return nil
}

// RegisterFile opens the code source at path and registers plugin id from
// it. An empty path registers a global plugin; "bundle:<name>" selects a
// link-time bundle.
func (m *Manager) RegisterFile(ctx context.Context, path, id string, supplier CapabilitySupplier) (*Description, error) {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryRegister); err != nil {
		return nil, err
	}
	src, err := loader.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", id, err)
	}
	return m.Register(ctx, src, id, supplier)
}

// Register registers plugin id from src. A nil src registers a global
// plugin that lives on the host's own code path. It requires
// module-registry register.
func (m *Manager) Register(ctx context.Context, src loader.CodeSource, id string, supplier CapabilitySupplier) (*Description, error) {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryRegister); err != nil {
		return nil, err
	}
	if err := m.checkState(); err != nil {
		return nil, err
	}

	l := loader.New(src, m.host, m.baseLogger)
	entry, err := m.entry(l, id)
	if err != nil {
		return nil, err
	}
	descriptor, err := newDescriptor(entry)
	if err != nil {
		return nil, err
	}

	sym, err := l.LoadFromSelf(descriptor.Entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEntryNotFound, descriptor.Entry, err)
	}

	if _, exists := m.lookup(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	deps := make([]*Description, 0, len(descriptor.Dependencies))
	for _, dep := range descriptor.Dependencies {
		pc, ok := m.lookup(dep.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %q required by %s", ErrDependencyNotFound, dep.ID, id)
		}
		ok, err := pc.description.descriptor.Version.Satisfies(dep.Constraint)
		if err != nil {
			return nil, fmt.Errorf("dependency %q of %s: %w", dep.ID, id, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %q is %s, %s requires %s",
				ErrDependencyVersionMismatch, dep.ID, pc.description.descriptor.Version, id, dep.Constraint)
		}
		deps = append(deps, pc.description)
	}

	dataDir, err := filepath.Abs(filepath.Join(m.dataDir, id))
	if err != nil {
		return nil, fmt.Errorf("plugin %s data directory: %w", id, err)
	}

	var additional []capability.Capability
	if supplier != nil {
		if additional, err = supplier(l); err != nil {
			return nil, fmt.Errorf("plugin %s capabilities: %w", id, err)
		}
	}
	dataGrant, err := capability.Subtree(dataDir, "read,write,delete")
	if err != nil {
		return nil, err
	}
	caps := capability.NewSet(additional...).Union(dataGrant, capability.ServiceRegistryAccess)

	d := &Description{
		descriptor:   descriptor,
		loader:       l,
		dependencies: deps,
		capabilities: caps,
		global:       src == nil,
		dataDir:      dataDir,
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("plugin %s data directory: %w", id, err)
	}
	if err := l.Bind(d); err != nil {
		return nil, err
	}
	if d.instance, err = instantiate(sym.Value); err != nil {
		return nil, fmt.Errorf("plugin %s entry %s: %w", id, descriptor.Entry, err)
	}

	if err := m.insert(&Context{description: d, manager: m}); err != nil {
		return nil, err
	}

	if len(additional) > 0 {
		m.logger.Info("Plugin has additional capabilities", "plugin", descriptor.String(), "capabilities", capabilityList(additional))
	}
	for _, c := range additional {
		if capability.IsAll(c) {
			m.logger.Warn("!!! Plugin was granted ALL capabilities, capability checks do not apply to it !!!", "plugin", descriptor.String())
			break
		}
	}
	if d.global {
		m.logger.Info("Plugin was registered without a code source", "plugin", descriptor.String())
	}
	m.events.Emit(ctx, lifecycle.EventTypePluginRegistered, "plugins", pluginEvent(d, nil))
	return d, nil
}

func (m *Manager) entry(l *loader.Loader, id string) (metadata.Entry, error) {
	doc, err := m.documents.Get(l.Key(), func() (*metadata.Document, error) {
		return metadata.Read(l)
	})
	if err != nil {
		if errors.Is(err, metadata.ErrNoDocument) {
			return metadata.Entry{}, fmt.Errorf("%w %q in %s: %w", ErrUnknownPlugin, id, l.Key(), err)
		}
		return metadata.Entry{}, fmt.Errorf("read plugin metadata of %s: %w", l.Key(), err)
	}
	e, ok := doc.Lookup(id)
	if !ok {
		return metadata.Entry{}, fmt.Errorf("%w %q in %s", ErrUnknownPlugin, id, l.Key())
	}
	return e, nil
}

func (m *Manager) insert(pc *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == stateShutdown {
		return ErrShutdown
	}
	id := pc.description.ID()
	if _, exists := m.plugins[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	pc.services = m.services.As(pc.description.loader)
	pc.plugins = &PluginRegistry{manager: m, owner: pc.description}
	pc.logger = logging.With(m.baseLogger, "plugin", id)
	m.plugins[id] = pc
	m.order = append(m.order, id)
	return nil
}

// forgetArchive drops the cached metadata of the archive at path so that a
// rebuilt archive is read again. Bundles never change and stay cached.
func (m *Manager) forgetArchive(path string) {
	if path == "" || strings.HasPrefix(path, loader.BundlePrefix) {
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		m.documents.Forget(abs)
	}
}

func (m *Manager) lookup(id string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pc, ok := m.plugins[id]
	return pc, ok
}

// snapshot returns the registered plugins in registration order.
func (m *Manager) snapshot() []*Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Context, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.plugins[id])
	}
	return out
}

func (m *Manager) checkState() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch m.state {
	case stateUninitialized:
		return ErrNotInitialized
	case stateShutdown:
		return ErrShutdown
	}
	return nil
}

// GetPlugins returns the registered plugins in registration order. It
// requires module-registry read.
func (m *Manager) GetPlugins(ctx context.Context) ([]*Description, error) {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryRead); err != nil {
		return nil, err
	}
	if err := m.checkState(); err != nil && !errors.Is(err, ErrShutdown) {
		return nil, err
	}
	plugins := m.snapshot()
	out := make([]*Description, len(plugins))
	for i, pc := range plugins {
		out[i] = pc.description
	}
	return out, nil
}

// GetPlugin returns the plugin registered under id. It requires
// module-registry read and works in every manager state.
func (m *Manager) GetPlugin(ctx context.Context, id string) (*Description, error) {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryRead); err != nil {
		return nil, err
	}
	pc, ok := m.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return pc.description, nil
}

// InitializePlugins runs the initialize hook of every registered plugin
// that has not been initialized yet. Failures are logged and mark the
// plugin failed; they never stop the iteration. It requires
// module-registry manage.
func (m *Manager) InitializePlugins(ctx context.Context) error {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryManage); err != nil {
		return err
	}
	if err := m.checkState(); err != nil {
		return err
	}

	plugins := m.snapshot()
	m.logger.Info("Currently registered plugins", "plugins", pluginIDs(plugins))
	m.logger.Info("Initializing plugins...")
	began := time.Now()
	initialized := 0
	for _, pc := range plugins {
		m.initialize(ctx, pc)
		if pc.description.Active() {
			initialized++
		}
	}
	m.logger.Info(fmt.Sprintf("%d of %d plugins initialized", initialized, len(plugins)), "took", time.Since(began))
	m.dumpServices(ctx)
	return nil
}

// initialize runs the initialize hook if this caller is the one that moves
// the plugin out of StateRegistered.
func (m *Manager) initialize(ctx context.Context, pc *Context) {
	d := pc.description
	if !d.claim() {
		return
	}
	m.logger.Debug("Initializing plugin", "plugin", d.String())

	err := safeCall(func() error { return d.instance.Initialize(pluginContext(ctx, d), pc) })
	if err != nil {
		d.setState(StateFailed)
		m.logger.Error("Plugin will not be loaded because initialize failed", "plugin", d.String(), "error", err)
		m.events.Emit(ctx, lifecycle.EventTypePluginFailed, "plugins", pluginEvent(d, err))
		return
	}
	d.setState(StateActive)
	m.logger.Debug("Plugin initialized", "plugin", d.String())
	m.events.Emit(ctx, lifecycle.EventTypePluginInitialized, "plugins", pluginEvent(d, nil))
}

// StartPlugins runs the start hook of every active plugin. Plugins whose
// initialize failed, or that were never initialized, are skipped. Failures
// are logged and neither deactivate the plugin nor stop the iteration. It
// requires module-registry manage.
func (m *Manager) StartPlugins(ctx context.Context) error {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryManage); err != nil {
		return err
	}
	if err := m.checkState(); err != nil {
		return err
	}

	plugins := m.snapshot()
	m.logger.Info("Starting plugins...")
	began := time.Now()
	started := 0
	for _, pc := range plugins {
		if !pc.description.Active() {
			m.logger.Debug("Skipping inactive plugin", "plugin", pc.description.String(), "state", pc.description.State().String())
			continue
		}
		m.start(ctx, pc)
		started++
	}
	m.logger.Info(fmt.Sprintf("%d plugins started", started), "took", time.Since(began))
	return nil
}

func (m *Manager) start(ctx context.Context, pc *Context) {
	d := pc.description
	m.logger.Debug("Starting plugin", "plugin", d.String())
	if err := safeCall(func() error { return d.instance.Start(pluginContext(ctx, d), pc) }); err != nil {
		m.logger.Error("Plugin failed while starting", "plugin", d.String(), "error", err)
		return
	}
	m.logger.Debug("Plugin started", "plugin", d.String())
	m.events.Emit(ctx, lifecycle.EventTypePluginStarted, "plugins", pluginEvent(d, nil))
}

// ActivatePlugin initializes and starts a single registered plugin. It is
// meant for plugins registered after the batch lifecycle ran and requires
// module-registry manage.
func (m *Manager) ActivatePlugin(ctx context.Context, id string) error {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryManage); err != nil {
		return err
	}
	if err := m.checkState(); err != nil {
		return err
	}
	pc, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	m.initialize(ctx, pc)
	switch st := pc.description.State(); st {
	case StateActive:
	case StateFailed:
		return fmt.Errorf("plugin %s failed to initialize", id)
	default:
		return fmt.Errorf("plugin %s is %s", id, st)
	}
	m.start(ctx, pc)
	return nil
}

// Shutdown clears the registry. No plugin hook is invoked; teardown is the
// job of Shutdownable services. It requires module-registry manage.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.enforcer.Check(ctx, capability.ModuleRegistryManage); err != nil {
		return err
	}
	m.mu.Lock()
	switch m.state {
	case stateUninitialized:
		m.mu.Unlock()
		return ErrNotInitialized
	case stateShutdown:
		m.mu.Unlock()
		return ErrShutdown
	}
	count := len(m.plugins)
	m.plugins = make(map[string]*Context)
	m.order = nil
	m.state = stateShutdown
	m.mu.Unlock()

	m.logger.Info("Plugin manager shut down", "plugins", count)
	m.events.Emit(ctx, lifecycle.EventTypeManagerShutdown, "plugins", map[string]int{"plugins": count})
	return nil
}

func (m *Manager) dumpServices(ctx context.Context) {
	view, err := m.services.Services(ctx)
	if err != nil {
		m.logger.Debug("Service bindings unavailable", "error", err)
		return
	}
	for _, slot := range view.Slots() {
		if inst := slot.Instance(); inst != nil {
			m.logger.Debug("Service is implemented", "service", slot.Name(), "implementation", reflect.TypeOf(inst).String())
		} else {
			m.logger.Debug("Service has no implementation", "service", slot.Name())
		}
	}
}

// safeCall runs a plugin hook and turns a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPluginPanic, r)
		}
	}()
	return fn()
}

func pluginIDs(plugins []*Context) string {
	ids := make([]string, len(plugins))
	for i, pc := range plugins {
		ids[i] = pc.description.ID()
	}
	return strings.Join(ids, ", ")
}

func capabilityList(caps []capability.Capability) string {
	parts := make([]string, len(caps))
	for i, c := range caps {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

func pluginEvent(d *Description, err error) map[string]any {
	data := map[string]any{
		"plugin":  d.ID(),
		"version": d.Descriptor().Version.String(),
		"global":  d.Global(),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}

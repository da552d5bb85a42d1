package modhost

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

func TestRegisterWithDependency(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	core, err := h.manager.Register(ctx, source("core.zip", fixture("core", "1.0.0", calls)), "core", nil)
	require.NoError(t, err)
	ext, err := h.manager.Register(ctx, source("ext.zip", fixture("ext", "2.0.0", calls, "core", ">=1.0.0")), "ext", nil)
	require.NoError(t, err)

	got, err := h.manager.GetPlugin(ctx, "ext")
	require.NoError(t, err)
	assert.Same(t, ext, got)
	require.Len(t, got.Dependencies(), 1)
	assert.Same(t, core, got.Dependencies()[0])
	assert.Equal(t, "ext@2.0.0", got.String())
	assert.Equal(t, StateRegistered, got.State())
	assert.False(t, got.Global())

	_, err = h.manager.Register(ctx, source("core-again.zip", fixture("core", "1.0.0", calls)), "core", nil)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	plugins, err := h.manager.GetPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "core", plugins[0].ID())
	assert.Same(t, ext, plugins[1])
}

func TestRegisterFailures(t *testing.T) {
	calls := &hooks{}
	tests := []struct {
		name string
		src  func() loader.CodeSource
		id   string
		err  error
	}{
		{
			name: "version mismatch",
			src:  func() loader.CodeSource { return source("ext.zip", fixture("ext", "2.0.0", calls, "core", ">=2.0.0")) },
			id:   "ext",
			err:  ErrDependencyVersionMismatch,
		},
		{
			name: "missing dependency",
			src:  func() loader.CodeSource { return source("ext.zip", fixture("ext", "2.0.0", calls, "other", ">=1.0.0")) },
			id:   "ext",
			err:  ErrDependencyNotFound,
		},
		{
			name: "unknown plugin",
			src:  func() loader.CodeSource { return source("ext.zip", fixture("ext", "2.0.0", calls)) },
			id:   "nope",
			err:  ErrUnknownPlugin,
		},
		{
			name: "no metadata",
			src:  func() loader.CodeSource { return loader.NewCatalog("empty.zip") },
			id:   "ext",
			err:  ErrUnknownPlugin,
		},
		{
			name: "entry symbol missing",
			src: func() loader.CodeSource {
				c := loader.NewCatalog("ext.zip")
				c.SetResource("META-INF/plugins.yaml", []byte("plugins:\n  - {id: ext, version: 1.0.0, entry: missing.Entry}\n"))
				return c
			},
			id:  "ext",
			err: ErrEntryNotFound,
		},
		{
			name: "entry not instantiable",
			src: func() loader.CodeSource {
				c := loader.NewCatalog("ext.zip")
				c.SetResource("META-INF/plugins.yaml", []byte("plugins:\n  - {id: ext, version: 1.0.0, entry: bad.Entry}\n"))
				c.MustRegister("bad.Entry", func(int) Plugin { return nil })
				return c
			},
			id:  "ext",
			err: ErrNotInstantiable,
		},
		{
			name: "excluded by negation",
			src:  func() loader.CodeSource { return source("ext.zip", fixture("ext", "2.0.0", calls, "core", "!(1.0.0)")) },
			id:   "ext",
			err:  ErrDependencyVersionMismatch,
		},
		{
			name: "unbalanced constraint",
			src:  func() loader.CodeSource { return source("ext.zip", fixture("ext", "2.0.0", calls, "core", "(>=1.0.0")) },
			id:   "ext",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t)
			ctx := context.Background()
			_, err := h.manager.Register(ctx, source("core.zip", fixture("core", "1.0.0", calls)), "core", nil)
			require.NoError(t, err)

			_, err = h.manager.Register(ctx, tt.src(), tt.id, nil)
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
			_, err = h.manager.GetPlugin(ctx, tt.id)
			assert.ErrorIs(t, err, ErrPluginNotFound)

			plugins, err := h.manager.GetPlugins(ctx)
			require.NoError(t, err)
			assert.Len(t, plugins, 1)
		})
	}
}

func TestRegisterConstraintForms(t *testing.T) {
	tests := []struct {
		name       string
		core       string
		constraint string
	}{
		{"pre-release dependency", "2.0.0-rc.1", ">=1.0.0"},
		{"grouped alternatives", "3.1.0", "(>=1.0.0 & <2.0.0) | >=3.0.0"},
		{"negated range", "1.6.0", ">=1.0.0 & !(1.5.x)"},
		{"partial version", "1.4.2", "1.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHost(t)
			ctx := context.Background()
			calls := &hooks{}
			_, err := h.manager.Register(ctx, source("core.zip", fixture("core", tt.core, calls)), "core", nil)
			require.NoError(t, err)

			ext, err := h.manager.Register(ctx, source("ext.zip", fixture("ext", "1.0.0", calls, "core", tt.constraint)), "ext", nil)
			require.NoError(t, err)
			require.Len(t, ext.Dependencies(), 1)
			assert.Equal(t, "core", ext.Dependencies()[0].ID())
		})
	}
}

func TestRacingRegistrationHasOneWinner(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	const racers = 16
	sources := make([]loader.CodeSource, racers)
	for i := range sources {
		sources[i] = source(fmt.Sprintf("racer-%02d.zip", i), fixture("dup", "1.0.0", calls))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		refused int
	)
	start := make(chan struct{})
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.manager.Register(ctx, src, "dup", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrAlreadyRegistered):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, racers-1, refused)
	plugins, err := h.manager.GetPlugins(ctx)
	require.NoError(t, err)
	assert.Len(t, plugins, 1)
}

func TestRegisterGrantsImplicitCapabilities(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	d, err := h.manager.Register(ctx, source("core.zip", fixture("core", "1.0.0", calls)), "core",
		Grant(capability.ModuleRegistryRead))
	require.NoError(t, err)

	wantDir, err := filepath.Abs(filepath.Join(h.dataDir, "core"))
	require.NoError(t, err)
	assert.Equal(t, wantDir, d.DataDirectory())
	info, err := os.Stat(wantDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	caps := d.Capabilities()
	assert.True(t, caps.Implies(capability.ServiceRegistryAccess))
	assert.True(t, caps.Implies(capability.ModuleRegistryRead))
	assert.False(t, caps.Implies(capability.ModuleRegistryManage))
	inside, err := capability.NewFile(filepath.Join(wantDir, "state.db"), "read,write,delete")
	require.NoError(t, err)
	assert.True(t, caps.Implies(inside))
	outside, err := capability.NewFile(filepath.Join(h.dataDir, "other", "x"), "read")
	require.NoError(t, err)
	assert.False(t, caps.Implies(outside))
}

func TestRegisterGlobalPlugin(t *testing.T) {
	h := newTestHost(t)
	calls := &hooks{}
	p := &testPlugin{id: "builtin", hooks: calls}
	h.host.MustRegister("example.builtin.Plugin", func() Plugin { return p })
	h.host.SetResource("META-INF/plugins.yaml", []byte("plugins:\n  - {id: builtin, version: 1.0.0, entry: example.builtin.Plugin}\n"))

	d, err := h.manager.Register(context.Background(), nil, "builtin", nil)
	require.NoError(t, err)
	assert.True(t, d.Global())
	assert.Same(t, p, d.Instance())
	assert.True(t, d.Loader().Global())
}

func TestDependencyLoaderResolution(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	coreSrc := source("core.zip", fixture("core", "1.0.0", calls))
	coreSrc.MustRegister("example.core.Shared", "from core")
	coreSrc.MustRegister("example.Both", "core copy")
	extSrc := source("ext.zip", fixture("ext", "2.0.0", calls, "core", "1.x"))
	extSrc.MustRegister("example.Both", "ext copy")
	h.host.MustRegister("example.host.Util", "from host")

	_, err := h.manager.Register(ctx, coreSrc, "core", nil)
	require.NoError(t, err)
	ext, err := h.manager.Register(ctx, extSrc, "ext", nil)
	require.NoError(t, err)

	tests := map[string]string{
		"example.core.Shared": "from core",
		"example.Both":        "ext copy",
		"example.host.Util":   "from host",
	}
	for name, want := range tests {
		sym, err := ext.Loader().Load(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, sym.Value, name)
	}

	_, err = ext.Loader().Load("example.Nowhere")
	require.ErrorIs(t, err, loader.ErrSymbolNotFound)
	assert.Contains(t, err.Error(), "example.Nowhere")

	_, err = ext.Loader().LoadFromSelf("example.core.Shared")
	assert.ErrorIs(t, err, loader.ErrSymbolNotFound)
	assert.ErrorIs(t, ext.Loader().Bind(ext), loader.ErrAlreadyInitialized)
}

func TestInitializeAndStartIsolateFailures(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	good := fixture("good", "1.0.0", calls)
	bad := fixture("bad", "1.0.0", calls)
	bad.plugin.initErr = errors.New("cannot initialize")
	boom := fixture("boom", "1.0.0", calls)
	boom.plugin.onInit = func(context.Context, *Context) error { panic("initialize exploded") }
	flaky := fixture("flaky", "1.0.0", calls)
	flaky.plugin.startErr = errors.New("cannot start")

	for _, s := range []pluginFixture{good, bad, boom, flaky} {
		_, err := h.manager.Register(ctx, source(s.id+".zip", s), s.id, nil)
		require.NoError(t, err)
	}

	var failed []string
	require.NoError(t, h.events.RegisterObserver(lifecycle.ObserverFunc{ID: "t", Handler: func(_ context.Context, e lifecycle.Event) error {
		var data map[string]any
		require.NoError(t, e.DataAs(&data))
		failed = append(failed, data["plugin"].(string))
		return nil
	}}, lifecycle.EventTypePluginFailed))

	require.NoError(t, h.manager.InitializePlugins(ctx))
	state := func(id string) State {
		d, err := h.manager.GetPlugin(ctx, id)
		require.NoError(t, err)
		return d.State()
	}
	assert.Equal(t, StateActive, state("good"))
	assert.Equal(t, StateFailed, state("bad"))
	assert.Equal(t, StateFailed, state("boom"))
	assert.Equal(t, StateActive, state("flaky"))
	assert.Equal(t, []string{"bad", "boom"}, failed)

	require.NoError(t, h.manager.StartPlugins(ctx))
	assert.Equal(t, []string{
		"init:good", "init:bad", "init:boom", "init:flaky",
		"start:good", "start:flaky",
	}, calls.snapshot())
	assert.Equal(t, StateActive, state("flaky"))

	require.NoError(t, h.manager.InitializePlugins(ctx))
	assert.Len(t, calls.snapshot(), 6)
}

func TestManagerStateMachine(t *testing.T) {
	ctx := context.Background()
	calls := &hooks{}
	m := NewManager(WithDataDirectory(t.TempDir()), WithHostSource(loader.NewCatalog("h")))

	_, err := m.Register(ctx, source("core.zip", fixture("core", "1.0.0", calls)), "core", nil)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = m.GetPlugins(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, m.InitializePlugins(ctx), ErrNotInitialized)
	require.ErrorIs(t, m.StartPlugins(ctx), ErrNotInitialized)
	require.ErrorIs(t, m.Shutdown(ctx), ErrNotInitialized)
	_, err = m.GetPlugin(ctx, "core")
	require.ErrorIs(t, err, ErrPluginNotFound)

	require.ErrorIs(t, m.Initialize(ctx, nil), ErrNilServiceRegistry)
	services := service.NewRegistry()
	require.NoError(t, m.Initialize(ctx, services))
	require.ErrorIs(t, m.Initialize(ctx, services), ErrAlreadyInitialized)

	_, err = m.Register(ctx, source("core.zip", fixture("core", "1.0.0", calls)), "core", nil)
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(ctx))

	plugins, err := m.GetPlugins(ctx)
	require.NoError(t, err)
	assert.Empty(t, plugins)
	_, err = m.Register(ctx, source("ext.zip", fixture("ext", "1.0.0", calls)), "ext", nil)
	require.ErrorIs(t, err, ErrShutdown)
	require.ErrorIs(t, m.Shutdown(ctx), ErrShutdown)
	assert.Empty(t, calls.snapshot())
}

func TestPluginCallsAreCapabilityChecked(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	type result struct {
		manageErr  error
		readErr    error
		serviceErr error
		writeErr   error
		escapeErr  error
		registerIn error
	}
	var res result

	s := fixture("probe", "1.0.0", calls)
	s.plugin.onInit = func(ctx context.Context, pc *Context) error {
		res.manageErr = pc.Plugins().StartPlugins(ctx)
		_, res.readErr = pc.Plugins().GetPlugins(ctx)
		_, res.serviceErr = service.Get[greeter](ctx, pc.Services())

		f, err := pc.DataFile(ctx, "state.txt", os.O_CREATE|os.O_WRONLY, 0o600)
		res.writeErr = err
		if err == nil {
			_ = f.Close()
		}
		_, res.escapeErr = pc.DataFile(ctx, "../elsewhere.txt", os.O_RDONLY, 0)
		_, res.registerIn = pc.Plugins().Register(ctx, source("nested.zip", fixture("nested", "1.0.0", calls)), "nested", nil)
		return nil
	}
	d, err := h.manager.Register(ctx, source("probe.zip", s), "probe", Grant(capability.ModuleRegistryRead))
	require.NoError(t, err)
	require.NoError(t, h.manager.InitializePlugins(ctx))

	var denied *policy.DeniedError
	require.ErrorAs(t, res.manageErr, &denied)
	assert.Equal(t, "plugin probe", denied.Origin)
	assert.NoError(t, res.readErr)
	assert.NoError(t, res.serviceErr)
	assert.NoError(t, res.writeErr)
	assert.FileExists(t, filepath.Join(d.DataDirectory(), "state.txt"))
	assert.ErrorIs(t, res.escapeErr, ErrInvalidDataFile)
	assert.ErrorIs(t, res.registerIn, policy.ErrAccessDenied)
	assert.True(t, d.Active())
}

func TestPluginHandlesKeepThePluginOrigin(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	var shutdownErr, registerErr, startErr, lookupErr error
	s := fixture("sneaky", "1.0.0", calls)
	s.plugin.onInit = func(ctx context.Context, pc *Context) error {
		shutdownErr = pc.Plugins().Shutdown(context.Background())
		_, registerErr = pc.Plugins().Register(policy.HostContext(ctx), source("smuggled.zip", fixture("smuggled", "1.0.0", calls)), "smuggled", nil)
		startErr = pc.Services().Start(context.Background())
		_, lookupErr = service.Get[greeter](context.Background(), pc.Services())
		return nil
	}
	_, err := h.manager.Register(ctx, source("sneaky.zip", s), "sneaky", nil)
	require.NoError(t, err)
	require.NoError(t, h.manager.InitializePlugins(ctx))

	for name, err := range map[string]error{"shutdown": shutdownErr, "register": registerErr, "services start": startErr} {
		var denied *policy.DeniedError
		require.ErrorAs(t, err, &denied, name)
		assert.Equal(t, "plugin sneaky", denied.Origin, name)
	}
	assert.NoError(t, lookupErr, "service access is granted to every plugin")

	plugins, err := h.manager.GetPlugins(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.True(t, plugins[0].Active())
}

type greeter interface{ Greet() string }

func TestAllCapabilityGrantIsHonoured(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	var manageErr error
	s := fixture("trusted", "1.0.0", calls)
	s.plugin.onInit = func(ctx context.Context, pc *Context) error {
		_, manageErr = pc.Plugins().Register(ctx, source("child.zip", fixture("child", "1.0.0", calls)), "child", nil)
		return nil
	}
	_, err := h.manager.Register(ctx, source("trusted.zip", s), "trusted", Grant(capability.All))
	require.NoError(t, err)
	require.NoError(t, h.manager.InitializePlugins(ctx))
	require.NoError(t, manageErr)

	child, err := h.manager.GetPlugin(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, child.State())
}

func TestConcurrentInitializeRunsHookOnce(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	var runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := fixture("slow", "1.0.0", calls)
	slow.plugin.onInit = func(context.Context, *Context) error {
		if runs.Add(1) == 1 {
			close(entered)
		}
		<-release
		return nil
	}
	_, err := h.manager.Register(ctx, source("slow.zip", slow), "slow", nil)
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() { first <- h.manager.InitializePlugins(ctx) }()
	<-entered

	var wg sync.WaitGroup
	activateErrs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.manager.InitializePlugins(ctx))
		}()
		go func() {
			defer wg.Done()
			activateErrs <- h.manager.ActivatePlugin(ctx, "slow")
		}()
	}
	wg.Wait()
	close(activateErrs)
	for err := range activateErrs {
		assert.Error(t, err, "activation must not race an initialize in progress")
	}

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, int32(1), runs.Load())

	d, err := h.manager.GetPlugin(ctx, "slow")
	require.NoError(t, err)
	assert.Equal(t, StateActive, d.State())
	assert.Equal(t, []string{"init:slow"}, calls.snapshot())
}

func TestActivatePlugin(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	_, err := h.manager.Register(ctx, source("late.zip", fixture("late", "1.0.0", calls)), "late", nil)
	require.NoError(t, err)
	require.NoError(t, h.manager.ActivatePlugin(ctx, "late"))
	assert.Equal(t, []string{"init:late", "start:late"}, calls.snapshot())

	require.ErrorIs(t, h.manager.ActivatePlugin(ctx, "missing"), ErrPluginNotFound)

	broken := fixture("broken", "1.0.0", calls)
	broken.plugin.initErr = errors.New("no")
	_, err = h.manager.Register(ctx, source("broken.zip", broken), "broken", nil)
	require.NoError(t, err)
	assert.Error(t, h.manager.ActivatePlugin(ctx, "broken"))
}

func TestRegisterFileOpensArchivesAndBundles(t *testing.T) {
	h := newTestHost(t)
	ctx := context.Background()
	calls := &hooks{}

	loader.RegisterBundle("modhost-test-bundle", source("bundle:modhost-test-bundle", fixture("bundled", "1.0.0", calls)))
	d, err := h.manager.RegisterFile(ctx, "bundle:modhost-test-bundle", "bundled", nil)
	require.NoError(t, err)
	assert.False(t, d.Global())

	_, err = h.manager.RegisterFile(ctx, "bundle:absent", "x", nil)
	assert.ErrorIs(t, err, loader.ErrBundleNotFound)

	_, err = h.manager.RegisterFile(ctx, filepath.Join(t.TempDir(), "missing.zip"), "x", nil)
	assert.Error(t, err)
}

func TestRegisterRequiresRegisterCapability(t *testing.T) {
	enforcer := policy.NewEnforcer(logging.Nop())
	require.NoError(t, enforcer.Install(nil))
	m := NewManager(WithEnforcer(enforcer), WithDataDirectory(t.TempDir()), WithHostSource(loader.NewCatalog("h")))
	require.NoError(t, m.Initialize(context.Background(), service.NewRegistry()))

	unbound := loader.New(loader.NewCatalog("x"), nil, logging.Nop())
	ctx := policy.WithOrigin(context.Background(), unbound)
	_, err := m.Register(ctx, source("core.zip", fixture("core", "1.0.0", &hooks{})), "core", nil)
	assert.ErrorIs(t, err, policy.ErrAccessDenied)
	_, err = m.GetPlugin(ctx, "core")
	assert.ErrorIs(t, err, policy.ErrAccessDenied)
}

package modhost

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modhost/lifecycle"
	"github.com/GoCodeAlone/modhost/loader"
	"github.com/GoCodeAlone/modhost/logging"
	"github.com/GoCodeAlone/modhost/policy"
	"github.com/GoCodeAlone/modhost/service"
)

// hooks records plugin hook invocations across a test.
type hooks struct {
	mu    sync.Mutex
	calls []string
}

func (h *hooks) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *hooks) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

type testPlugin struct {
	id       string
	hooks    *hooks
	initErr  error
	startErr error
	onInit   func(ctx context.Context, pc *Context) error
}

func (p *testPlugin) Initialize(ctx context.Context, pc *Context) error {
	p.hooks.record("init:" + p.id)
	if p.onInit != nil {
		return p.onInit(ctx, pc)
	}
	return p.initErr
}

func (p *testPlugin) Start(context.Context, *Context) error {
	p.hooks.record("start:" + p.id)
	return p.startErr
}

// pluginFixture describes one plugin to publish in a test code source.
type pluginFixture struct {
	id      string
	version string
	deps    map[string]string
	depList []string
	plugin  *testPlugin
}

// source builds a catalog carrying a metadata document and an entry
// constructor for every fixture.
func source(key string, fixtures ...pluginFixture) *loader.Catalog {
	c := loader.NewCatalog(key)
	doc := "plugins:\n"
	for _, s := range fixtures {
		entry := "example." + s.id + ".Plugin"
		doc += fmt.Sprintf("  - id: %s\n    version: %s\n    entry: %s\n", s.id, s.version, entry)
		if len(s.depList) > 0 {
			doc += "    dependencies:\n"
			for _, dep := range s.depList {
				doc += fmt.Sprintf("      - id: %s\n        version: %q\n", dep, s.deps[dep])
			}
		}
		p := s.plugin
		c.MustRegister(entry, func() Plugin { return p })
	}
	c.SetResource("META-INF/plugins.yaml", []byte(doc))
	return c
}

func fixture(id, version string, h *hooks, deps ...string) pluginFixture {
	s := pluginFixture{id: id, version: version, deps: map[string]string{}, plugin: &testPlugin{id: id, hooks: h}}
	for i := 0; i+1 < len(deps); i += 2 {
		s.deps[deps[i]] = deps[i+1]
		s.depList = append(s.depList, deps[i])
	}
	return s
}

type testHost struct {
	manager  *Manager
	services *service.Registry
	enforcer *policy.Enforcer
	events   *lifecycle.Dispatcher
	host     *loader.Catalog
	dataDir  string
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	h := &testHost{
		enforcer: policy.NewEnforcer(logging.Nop()),
		events:   lifecycle.NewDispatcher(logging.Nop()),
		host:     loader.NewCatalog("test-host"),
		dataDir:  t.TempDir(),
	}
	require.NoError(t, h.enforcer.Install(nil))
	h.services = service.NewRegistry(service.WithEnforcer(h.enforcer), service.WithEvents(h.events))
	h.manager = NewManager(
		WithDataDirectory(h.dataDir),
		WithEnforcer(h.enforcer),
		WithHostSource(h.host),
		WithEvents(h.events),
		WithLogger(logging.Nop()),
	)
	require.NoError(t, h.manager.Initialize(context.Background(), h.services))
	return h
}

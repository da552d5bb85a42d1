package loader

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/internal/testutil"
	"github.com/GoCodeAlone/modhost/logging"
)

type fakeModule struct {
	id   string
	deps []*Loader
	caps capability.Set
}

func (f *fakeModule) ID() string                   { return f.id }
func (f *fakeModule) DependencyLoaders() []*Loader { return f.deps }
func (f *fakeModule) Capabilities() capability.Set { return f.caps }

func newHost(t *testing.T) *Catalog {
	t.Helper()
	return NewCatalog("test-host").MustRegister("host.Util", "host-util")
}

func TestLoadResolutionOrder(t *testing.T) {
	host := newHost(t)
	coreSrc := NewCatalog("core").
		MustRegister("shared.Type", "core-shared").
		MustRegister("core.Only", "core-only")
	extSrc := NewCatalog("ext").
		MustRegister("shared.Type", "ext-shared")

	core := New(coreSrc, host, logging.Nop())
	require.NoError(t, core.Bind(&fakeModule{id: "core"}))
	ext := New(extSrc, host, logging.Nop())

	// Before binding, dependency loaders are not consulted.
	_, err := ext.Load("core.Only")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	require.NoError(t, ext.Bind(&fakeModule{id: "ext", deps: []*Loader{core}}))

	sym, err := ext.Load("shared.Type")
	require.NoError(t, err)
	assert.Equal(t, "ext-shared", sym.Value, "own code wins over dependency code")
	assert.Equal(t, "ext", sym.Source)

	sym, err = ext.Load("host.Util")
	require.NoError(t, err)
	assert.Equal(t, "host-util", sym.Value)
	assert.Equal(t, "test-host", sym.Source)

	sym, err = ext.Load("core.Only")
	require.NoError(t, err)
	assert.Equal(t, "core-only", sym.Value)
	assert.Equal(t, "core", sym.Source)

	_, err = ext.Load("missing.Symbol")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSymbolNotFound)
	assert.Contains(t, err.Error(), "missing.Symbol")
}

func TestHostWinsOverDependency(t *testing.T) {
	host := NewCatalog("h").MustRegister("x.Y", "from-host")
	dep := New(NewCatalog("dep").MustRegister("x.Y", "from-dep"), host, logging.Nop())
	require.NoError(t, dep.Bind(&fakeModule{id: "dep"}))

	l := New(NewCatalog("self"), host, logging.Nop())
	require.NoError(t, l.Bind(&fakeModule{id: "self", deps: []*Loader{dep}}))

	sym, err := l.Load("x.Y")
	require.NoError(t, err)
	assert.Equal(t, "from-host", sym.Value)
}

func TestLoadFromSelfDoesNotFallThrough(t *testing.T) {
	host := newHost(t)
	l := New(NewCatalog("self").MustRegister("self.Entry", 1), host, logging.Nop())

	sym, err := l.LoadFromSelf("self.Entry")
	require.NoError(t, err)
	assert.Equal(t, 1, sym.Value)

	_, err = l.LoadFromSelf("host.Util")
	assert.ErrorIs(t, err, ErrSymbolNotFound)
}

func TestGlobalLoaderUsesHostAsSelf(t *testing.T) {
	host := newHost(t)
	l := New(nil, host, logging.Nop())
	assert.True(t, l.Global())
	assert.Equal(t, "test-host", l.Key())

	sym, err := l.LoadFromSelf("host.Util")
	require.NoError(t, err)
	assert.Equal(t, "host-util", sym.Value)
}

func TestBindOnce(t *testing.T) {
	l := New(NewCatalog("c"), nil, logging.Nop())
	assert.ErrorIs(t, l.Bind(nil), ErrNilModule)
	assert.Equal(t, "unbound loader c", l.OriginName())
	assert.Equal(t, 0, l.Capabilities().Len())

	m := &fakeModule{id: "c", caps: capability.NewSet(capability.ServiceRegistryAccess)}
	require.NoError(t, l.Bind(m))
	assert.ErrorIs(t, l.Bind(&fakeModule{id: "other"}), ErrAlreadyInitialized)
	assert.Same(t, m, l.Module())
	assert.Equal(t, "plugin c", l.OriginName())
	assert.True(t, l.Capabilities().Implies(capability.ServiceRegistryAccess))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("cat")
	require.NoError(t, c.Register("b", 2))
	require.NoError(t, c.Register("a", 1))
	assert.ErrorIs(t, c.Register("a", 3), ErrDuplicateSymbol)
	assert.Equal(t, []string{"a", "b"}, c.Symbols())

	c.SetResource("r.txt", []byte("data"))
	data, err := c.Resource("r.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
	_, err = c.Resource("nope")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestArchiveCompilesSymbolsByExtension(t *testing.T) {
	calls := 0
	RegisterCompiler(".txt", func(symbol string, src []byte) (any, error) {
		calls++
		if string(src) == "broken" {
			return nil, errors.New("cannot compile")
		}
		return symbol + "=" + string(src), nil
	})

	p := testutil.WriteArchive(t, "plugin.zip", map[string]string{
		"META-INF/plugins.yaml": "plugins: []",
		"com/example/Core.txt":  "core",
		"com/example/Bad.txt":   "broken",
		"com/example/Native.so": "\x7fELF",
	})
	a, err := OpenArchive(p)
	require.NoError(t, err)
	assert.Equal(t, p, a.Key())
	assert.Contains(t, a.Entries(), "com/example/Core.txt")

	v, err := a.Lookup("com.example.Core")
	require.NoError(t, err)
	assert.Equal(t, "com.example.Core=core", v)
	_, err = a.Lookup("com.example.Core")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "compiled symbols are cached")

	_, err = a.Lookup("com.example.Bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)

	_, err = a.Lookup("com.example.Missing")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	_, err = a.Lookup("com.example.Native")
	assert.ErrorIs(t, err, ErrNoCompiler)
	assert.NotErrorIs(t, err, ErrSymbolNotFound)

	l := New(a, NewCatalog("host").MustRegister("com.example.Native", "host copy"), nil)
	_, err = l.Load("com.example.Native")
	assert.ErrorIs(t, err, ErrNoCompiler, "an uncompilable own symbol is not shadowed by the host")

	meta, err := a.Resource("META-INF/plugins.yaml")
	require.NoError(t, err)
	assert.Equal(t, "plugins: []", string(meta))
}

func TestOpen(t *testing.T) {
	src, err := Open("")
	require.NoError(t, err)
	assert.Nil(t, src)

	RegisterBundle("open-test", NewCatalog("bundle:open-test"))
	src, err = Open("bundle:open-test")
	require.NoError(t, err)
	assert.Equal(t, "bundle:open-test", src.Key())

	_, err = Open("bundle:nope")
	assert.ErrorIs(t, err, ErrBundleNotFound)

	_, err = Open("/does/not/exist.zip")
	assert.Error(t, err)
}

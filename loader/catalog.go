package loader

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is an in-process code source whose symbols are registered by Go
// code, usually from init functions.
type Catalog struct {
	key       string
	symbols   sync.Map // string -> any
	resources sync.Map // string -> []byte
}

// NewCatalog creates an empty catalog identified by key.
func NewCatalog(key string) *Catalog {
	return &Catalog{key: key}
}

// Key implements CodeSource.
func (c *Catalog) Key() string { return c.key }

// Register adds a symbol. Registering the same name twice fails.
func (c *Catalog) Register(name string, value any) error {
	if _, loaded := c.symbols.LoadOrStore(name, value); loaded {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateSymbol, name, c.key)
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Catalog) MustRegister(name string, value any) *Catalog {
	if err := c.Register(name, value); err != nil {
		panic(err)
	}
	return c
}

// SetResource stores a named resource, replacing any previous content.
func (c *Catalog) SetResource(name string, data []byte) *Catalog {
	c.resources.Store(name, append([]byte(nil), data...))
	return c
}

// Lookup implements CodeSource.
func (c *Catalog) Lookup(name string) (any, error) {
	v, ok := c.symbols.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, name, c.key)
	}
	return v, nil
}

// Resource implements CodeSource.
func (c *Catalog) Resource(name string) ([]byte, error) {
	v, ok := c.resources.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrResourceNotFound, name, c.key)
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Symbols returns the registered symbol names in sorted order.
func (c *Catalog) Symbols() []string {
	var names []string
	c.symbols.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

var (
	host    = NewCatalog("host")
	bundles sync.Map // string -> *Catalog
)

// Host returns the host application's catalog, the second resolution tier
// of every loader and the code path of global plugins.
func Host() *Catalog { return host }

// RegisterBundle publishes a catalog under name so that plugin lists can
// refer to it as "bundle:<name>". Re-registering a name replaces it.
func RegisterBundle(name string, c *Catalog) {
	bundles.Store(name, c)
}

// LookupBundle returns a registered bundle.
func LookupBundle(name string) (*Catalog, bool) {
	v, ok := bundles.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*Catalog), true
}

package loader

import (
	"fmt"
	"strings"
)

// Symbol is a resolved unit of code.
type Symbol struct {
	// Name is the fully qualified name that was requested.
	Name string
	// Value is the code itself, typically a constructor function.
	Value any
	// Source is the key of the code source that provided the symbol.
	Source string
}

// CodeSource is a private source of code and resources for one plugin.
type CodeSource interface {
	// Key identifies the code source; metadata is cached per key.
	Key() string
	// Lookup resolves a symbol inside this source only. It returns an error
	// wrapping ErrSymbolNotFound when the symbol is absent.
	Lookup(name string) (any, error)
	// Resource returns the raw bytes of a named resource, or an error
	// wrapping ErrResourceNotFound.
	Resource(name string) ([]byte, error)
}

// BundlePrefix marks code source paths that name a registered bundle.
const BundlePrefix = "bundle:"

// Open resolves a code source path. "bundle:<name>" selects a registered
// bundle, anything else is opened as an archive on disk. An empty path
// returns a nil CodeSource, which denotes a global plugin.
func Open(path string) (CodeSource, error) {
	if path == "" {
		return nil, nil
	}
	if name, ok := strings.CutPrefix(path, BundlePrefix); ok {
		b, found := LookupBundle(name)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, name)
		}
		return b, nil
	}
	return OpenArchive(path)
}

package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/logging"
)

// Module is what a loader needs from the plugin it is bound to.
type Module interface {
	// ID returns the plugin id.
	ID() string
	// DependencyLoaders returns the loaders of the declared dependencies in
	// declaration order.
	DependencyLoaders() []*Loader
	// Capabilities returns the plugin's fixed capability set.
	Capabilities() capability.Set
}

// Loader resolves symbols for one plugin. Loaders form a DAG that mirrors
// the plugin dependency graph.
type Loader struct {
	source CodeSource
	host   CodeSource
	logger logging.Logger

	mu     sync.RWMutex
	module Module
}

// New creates a loader over source with host as fallback. A nil source
// makes the host catalog the loader's own tier.
func New(source, host CodeSource, logger logging.Logger) *Loader {
	if host == nil {
		host = Host()
	}
	return &Loader{
		source: source,
		host:   host,
		logger: logging.With(logger, "component", "loader"),
	}
}

// Global reports whether the loader has no private code source.
func (l *Loader) Global() bool { return l.source == nil }

// Key returns the key of the loader's own code source.
func (l *Loader) Key() string { return l.self().Key() }

// Bind attaches the registered plugin to the loader. It may succeed only
// once; afterwards dependency loaders take part in resolution.
func (l *Loader) Bind(m Module) error {
	if m == nil {
		return ErrNilModule
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.module != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyInitialized, l.module.ID())
	}
	l.module = m
	return nil
}

// Module returns the bound plugin, or nil before Bind.
func (l *Loader) Module() Module {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.module
}

// LoadFromSelf resolves name from the loader's own code source only.
func (l *Loader) LoadFromSelf(name string) (Symbol, error) {
	src := l.self()
	v, err := src.Lookup(name)
	if err != nil {
		return Symbol{}, err
	}
	l.logger.Debug("Resolved symbol from plugin source", "symbol", name, "source", src.Key())
	return Symbol{Name: name, Value: v, Source: src.Key()}, nil
}

// Load resolves name from the plugin's own code, then the host, then each
// dependency's loader in declaration order.
func (l *Loader) Load(name string) (Symbol, error) {
	sym, err := l.LoadFromSelf(name)
	if err == nil {
		return sym, nil
	}
	if !errors.Is(err, ErrSymbolNotFound) {
		return Symbol{}, err
	}

	if !l.Global() {
		l.logger.Debug("Trying host catalog", "symbol", name)
		if v, err := l.host.Lookup(name); err == nil {
			return Symbol{Name: name, Value: v, Source: l.host.Key()}, nil
		} else if !errors.Is(err, ErrSymbolNotFound) {
			return Symbol{}, err
		}
	}

	if m := l.Module(); m != nil {
		for _, dep := range m.DependencyLoaders() {
			depID := ""
			if dm := dep.Module(); dm != nil {
				depID = dm.ID()
			}
			l.logger.Debug("Trying dependency loader", "symbol", name, "dependency", depID)
			sym, err := dep.Load(name)
			if err == nil {
				return sym, nil
			}
			if !errors.Is(err, ErrSymbolNotFound) {
				return Symbol{}, err
			}
		}
	}
	return Symbol{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
}

// Resource reads a resource from the loader's own code source.
func (l *Loader) Resource(name string) ([]byte, error) {
	return l.self().Resource(name)
}

// OriginName identifies the loader in capability checks.
func (l *Loader) OriginName() string {
	if m := l.Module(); m != nil {
		return "plugin " + m.ID()
	}
	return "unbound loader " + l.Key()
}

// Capabilities returns the capability set of the bound plugin; an unbound
// loader holds none.
func (l *Loader) Capabilities() capability.Set {
	if m := l.Module(); m != nil {
		return m.Capabilities()
	}
	return capability.Set{}
}

func (l *Loader) self() CodeSource {
	if l.source == nil {
		return l.host
	}
	return l.source
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GoCodeAlone/modhost/capability"
	"github.com/GoCodeAlone/modhost/feeders"
	"github.com/GoCodeAlone/modhost/loader"
)

// PluginList is the ordered list of plugins installed on a host.
// Dependencies must be listed before their dependents.
type PluginList struct {
	Plugins []PluginEntry `yaml:"plugins" toml:"plugins" json:"plugins" hcl:"plugin,block"`
}

// PluginEntry names a plugin inside a code source. An empty File denotes a
// global plugin built into the host; "bundle:<name>" a link-time bundle.
type PluginEntry struct {
	ID       string    `yaml:"id" toml:"id" json:"id" hcl:"id,label"`
	File     string    `yaml:"file" toml:"file" json:"file" hcl:"file,optional"`
	Security *Security `yaml:"security,omitempty" toml:"security,omitempty" json:"security,omitempty" hcl:"security,block"`
}

// Security lists the additional capabilities granted to a plugin.
type Security struct {
	Grants []Grant `yaml:"grants" toml:"grants" json:"grants" hcl:"grant,block"`
}

// Grant is one capability grant.
type Grant struct {
	// Type is module-registry, service-registry, file or all.
	Type string `yaml:"type" toml:"type" json:"type" hcl:"type"`
	// Name is the target of file grants. ${NAME} expands from the
	// environment.
	Name    string `yaml:"name" toml:"name" json:"name" hcl:"name,optional"`
	Actions string `yaml:"actions" toml:"actions" json:"actions" hcl:"actions,optional"`
}

// LoadPluginList reads a plugin list; the format follows the extension.
func LoadPluginList(path string) (*PluginList, error) {
	f, err := feeders.ForFile(path)
	if err != nil {
		return nil, err
	}
	list := &PluginList{}
	if err := f.Feed(list); err != nil {
		return nil, fmt.Errorf("plugin list: %w", err)
	}
	if err := list.Validate(); err != nil {
		return nil, fmt.Errorf("plugin list %s: %w", path, err)
	}
	return list, nil
}

// Validate checks for missing and repeated ids.
func (l *PluginList) Validate() error {
	seen := make(map[string]bool, len(l.Plugins))
	for i, p := range l.Plugins {
		if p.ID == "" {
			return fmt.Errorf("%w: entry #%d", ErrMissingPluginID, i)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicatePluginID, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// IDs returns the listed ids in order.
func (l *PluginList) IDs() []string {
	ids := make([]string, len(l.Plugins))
	for i, p := range l.Plugins {
		ids[i] = p.ID
	}
	return ids
}

// Source returns the code source path of the entry. Relative archive paths
// are resolved against the directory of listFile.
func (e PluginEntry) Source(listFile string) string {
	if e.File == "" || strings.HasPrefix(e.File, loader.BundlePrefix) || filepath.IsAbs(e.File) {
		return e.File
	}
	return filepath.Join(filepath.Dir(listFile), e.File)
}

// Capabilities converts the entry's grants. Grants whose name expands to
// an empty string are dropped.
func (e PluginEntry) Capabilities() ([]capability.Capability, error) {
	if e.Security == nil {
		return nil, nil
	}
	var caps []capability.Capability
	for _, g := range e.Security.Grants {
		c, ok, err := g.Capability()
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", e.ID, err)
		}
		if ok {
			caps = append(caps, c)
		}
	}
	return caps, nil
}

// Capability converts the grant. ok is false when the grant names a file
// whose placeholder expansion is empty.
func (g Grant) Capability() (c capability.Capability, ok bool, err error) {
	name := g.Name
	if strings.Contains(name, "${") {
		name = os.Expand(name, os.Getenv)
		if strings.TrimSpace(name) == "" {
			return nil, false, nil
		}
	}
	c, err = capability.Parse(g.Type, name, g.Actions)
	if err != nil {
		return nil, false, fmt.Errorf("%w %s %q (%s): %w", ErrInvalidGrant, g.Type, g.Name, g.Actions, err)
	}
	return c, true, nil
}

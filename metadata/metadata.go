// Package metadata decodes the plugin metadata document embedded in every
// code source. The document is produced at build time; the host only
// consumes it.
//
// YAML form (META-INF/plugins.yaml):
//
//	plugins:
//	  - id: ext
//	    version: 2.0.0
//	    entry: com.example.ext.Plugin
//	    dependencies:
//	      - id: core
//	        version: ">=1.0.0"
//
// The TOML form (META-INF/plugins.toml) uses [[plugins]] and
// [[plugins.dependencies]] tables with the same keys.
package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"path"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/modhost/version"
)

// Resource names searched in a code source, in order.
var Resources = []string{
	"META-INF/plugins.yaml",
	"META-INF/plugins.yml",
	"META-INF/plugins.toml",
}

var (
	// ErrMalformed is returned for documents that cannot be decoded or miss
	// required fields.
	ErrMalformed = errors.New("malformed plugin metadata")
	// ErrNoDocument is returned when a code source carries no metadata document.
	ErrNoDocument = errors.New("no plugin metadata document")
	// ErrUnsupportedFormat is returned for an unknown document extension.
	ErrUnsupportedFormat = errors.New("unsupported metadata format")
)

// Document lists the plugins provided by one code source.
type Document struct {
	Plugins []Entry `yaml:"plugins" toml:"plugins"`
}

// Entry describes one provided plugin.
type Entry struct {
	ID           string       `yaml:"id" toml:"id"`
	Version      string       `yaml:"version" toml:"version"`
	Entry        string       `yaml:"entry" toml:"entry"`
	Dependencies []Dependency `yaml:"dependencies" toml:"dependencies"`
}

// Dependency is a declared dependency and its version constraint expression.
type Dependency struct {
	ID      string `yaml:"id" toml:"id"`
	Version string `yaml:"version" toml:"version"`
}

// Lookup returns the entry with the given id.
func (d *Document) Lookup(id string) (Entry, bool) {
	for _, e := range d.Plugins {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Decode parses a document; the format is chosen by the extension of name.
func Decode(name string, data []byte) (*Document, error) {
	var doc Document
	switch ext := path.Ext(name); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, name, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, name, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: %s: unknown keys %v", ErrMalformed, name, undecoded)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, ext)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &doc, nil
}

// Validate checks required fields and version syntax. Constraint
// expressions are checked lazily when a dependency is resolved.
func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Plugins))
	for i, e := range d.Plugins {
		switch {
		case e.ID == "":
			return fmt.Errorf("%w: plugin #%d has no id", ErrMalformed, i)
		case e.Entry == "":
			return fmt.Errorf("%w: plugin %s has no entry symbol", ErrMalformed, e.ID)
		case seen[e.ID]:
			return fmt.Errorf("%w: plugin %s declared twice", ErrMalformed, e.ID)
		}
		seen[e.ID] = true
		if _, err := version.Parse(e.Version); err != nil {
			return fmt.Errorf("%w: plugin %s: %w", ErrMalformed, e.ID, err)
		}
		for _, dep := range e.Dependencies {
			if dep.ID == "" || dep.Version == "" {
				return fmt.Errorf("%w: plugin %s has a dependency without id or version expression", ErrMalformed, e.ID)
			}
		}
	}
	return nil
}

// ResourceReader is the part of a code source needed to read metadata.
type ResourceReader interface {
	Resource(name string) ([]byte, error)
}

// Read finds and decodes the first metadata document present in src.
func Read(src ResourceReader) (*Document, error) {
	for _, name := range Resources {
		data, err := src.Resource(name)
		if err != nil {
			continue
		}
		return Decode(name, data)
	}
	return nil, ErrNoDocument
}

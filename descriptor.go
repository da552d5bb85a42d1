package modhost

import (
	"fmt"

	"github.com/GoCodeAlone/modhost/metadata"
	"github.com/GoCodeAlone/modhost/version"
)

// Descriptor is the immutable identity of a plugin as declared in its
// metadata document.
type Descriptor struct {
	ID           string
	Version      version.Version
	Entry        string
	Dependencies []Dependency
}

// Dependency is a declared dependency together with its version
// constraint expression.
type Dependency struct {
	ID         string
	Constraint string
}

func newDescriptor(e metadata.Entry) (Descriptor, error) {
	v, err := version.Parse(e.Version)
	if err != nil {
		return Descriptor{}, fmt.Errorf("plugin %s: %w", e.ID, err)
	}
	d := Descriptor{ID: e.ID, Version: v, Entry: e.Entry}
	for _, dep := range e.Dependencies {
		d.Dependencies = append(d.Dependencies, Dependency{ID: dep.ID, Constraint: dep.Version})
	}
	return d, nil
}

// String returns "id@version".
func (d Descriptor) String() string {
	return d.ID + "@" + d.Version.String()
}

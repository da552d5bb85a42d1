package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Feeder fills a configuration structure from one source.
type Feeder interface {
	Feed(structure any) error
}

// ForFile returns the file feeder matching the extension of path.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	case ".hcl":
		return NewHCLFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedExtension, path)
	}
}

// Feed applies feeders in order; later feeders override earlier ones.
func Feed(structure any, feeders ...Feeder) error {
	for _, f := range feeders {
		if err := f.Feed(structure); err != nil {
			return err
		}
	}
	return nil
}

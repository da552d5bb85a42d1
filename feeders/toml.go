package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file.
type TomlFeeder struct {
	Path string
}

// NewTomlFeeder creates a TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file into structure.
func (t TomlFeeder) Feed(structure any) error {
	if _, err := toml.DecodeFile(t.Path, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileDecode, t.Path, err)
	}
	return nil
}

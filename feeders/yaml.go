package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the file into structure.
func (y YamlFeeder) Feed(structure any) error {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileDecode, y.Path, err)
	}
	return nil
}

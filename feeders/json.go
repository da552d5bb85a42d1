package feeders

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder reads a JSON file.
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed decodes the file into structure.
func (j JSONFeeder) Feed(structure any) error {
	data, err := os.ReadFile(j.Path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, structure); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileDecode, j.Path, err)
	}
	return nil
}

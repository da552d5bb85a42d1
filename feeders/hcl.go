package feeders

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// HCLFeeder reads an HCL file. Expressions may refer to environment
// variables as env.NAME.
type HCLFeeder struct {
	Path string
}

// NewHCLFeeder creates an HCLFeeder that reads from the specified HCL file
func NewHCLFeeder(filePath string) HCLFeeder {
	return HCLFeeder{Path: filePath}
}

// Feed decodes the file into structure, which must carry hcl tags.
func (h HCLFeeder) Feed(structure any) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(h.Path)
	if diags.HasErrors() {
		if _, err := os.Stat(h.Path); err != nil {
			return err
		}
		return fmt.Errorf("%w: failed to parse HCL file %s: %w", ErrFileDecode, h.Path, diags)
	}
	diags = gohcl.DecodeBody(file.Body, EnvContext(), structure)
	if diags.HasErrors() {
		return fmt.Errorf("%w: failed to decode HCL file %s: %w", ErrFileDecode, h.Path, diags)
	}
	return nil
}

// EnvContext exposes the process environment to HCL expressions.
func EnvContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		vars[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

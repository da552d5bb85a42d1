package loader

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Compiler turns the bytes of a symbol file into a symbol value.
type Compiler func(symbol string, src []byte) (any, error)

var compilers sync.Map // extension -> Compiler

// RegisterCompiler makes archives compile symbol files with the given
// extension (including the dot, e.g. ".lua") using c.
func RegisterCompiler(ext string, c Compiler) {
	compilers.Store(ext, c)
}

func registeredExtensions() []string {
	var exts []string
	compilers.Range(func(k, _ any) bool {
		exts = append(exts, k.(string))
		return true
	})
	sort.Strings(exts)
	return exts
}

// Archive is a zip file holding a plugin's metadata and symbol files.
// A symbol "com.example.Core" is looked up as "com/example/Core<ext>" for
// every registered compiler extension.
type Archive struct {
	path    string
	entries map[string][]byte
	symbols sync.Map // name -> any
}

// OpenArchive reads the archive at p fully into memory.
func OpenArchive(p string) (*Archive, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("resolve archive path %s: %w", p, err)
	}
	r, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", abs, err)
	}
	defer r.Close()

	entries := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", f.Name, abs, err)
		}
		entries[path.Clean(f.Name)] = data
	}
	return &Archive{path: abs, entries: entries}, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Key implements CodeSource; it is the absolute archive path.
func (a *Archive) Key() string { return a.path }

// Resource implements CodeSource.
func (a *Archive) Resource(name string) ([]byte, error) {
	data, ok := a.entries[path.Clean(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrResourceNotFound, name, a.path)
	}
	return append([]byte(nil), data...), nil
}

// Lookup implements CodeSource. Compiled symbols are cached per archive.
// A symbol file whose extension has no compiler fails with ErrNoCompiler
// rather than falling through to other tiers.
func (a *Archive) Lookup(name string) (any, error) {
	if v, ok := a.symbols.Load(name); ok {
		return v, nil
	}
	base := strings.ReplaceAll(name, ".", "/")
	for _, ext := range registeredExtensions() {
		src, ok := a.entries[base+ext]
		if !ok {
			continue
		}
		c, _ := compilers.Load(ext)
		v, err := c.(Compiler)(name, src)
		if err != nil {
			return nil, fmt.Errorf("compile %s from %s: %w", name, a.path, err)
		}
		actual, _ := a.symbols.LoadOrStore(name, v)
		return actual, nil
	}
	for entry := range a.entries {
		if ext := path.Ext(entry); ext != "" && strings.TrimSuffix(entry, ext) == base {
			return nil, fmt.Errorf("%w %q: %s in %s", ErrNoCompiler, ext, name, a.path)
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, name, a.path)
}

// Entries returns the names of all files in the archive in sorted order.
func (a *Archive) Entries() []string {
	names := make([]string, 0, len(a.entries))
	for n := range a.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

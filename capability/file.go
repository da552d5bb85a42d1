package capability

import (
	"path/filepath"
	"strings"
)

// Recursive is the path suffix that extends a file capability to the whole
// subtree below a directory.
const Recursive = "-"

// File grants read, write or delete access to a path. A path ending in
// "/-" covers the directory and everything below it.
type File struct {
	path      string
	recursive bool
	mask      uint32
}

// NewFile parses a file capability such as NewFile("/srv/data/-", "read,write").
func NewFile(path, actions string) (File, error) {
	if strings.TrimSpace(path) == "" {
		return File{}, ErrEmptyPath
	}
	mask, err := Files.Mask(actions)
	if err != nil {
		return File{}, err
	}
	f := File{mask: mask}
	sep := string(filepath.Separator)
	if path == Recursive || strings.HasSuffix(path, sep+Recursive) || strings.HasSuffix(path, "/"+Recursive) {
		f.recursive = true
		path = strings.TrimSuffix(path, Recursive)
		if path == "" {
			path = "."
		}
	}
	f.path = clean(path)
	return f, nil
}

// Subtree returns the file capability covering dir and everything below it.
func Subtree(dir, actions string) (File, error) {
	return NewFile(filepath.Join(dir, Recursive), actions)
}

// Path returns the cleaned absolute path the capability protects.
func (f File) Path() string { return f.path }

func (f File) Resource() string { return Files.name }

func (f File) Actions() string { return Files.String(f.mask) }

func (f File) Implies(other Capability) bool {
	o, ok := other.(File)
	if !ok || f.mask&o.mask != o.mask {
		return false
	}
	if !f.recursive {
		return !o.recursive && f.path == o.path
	}
	if f.path == o.path {
		return true
	}
	prefix := f.path
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(o.path, prefix)
}

func (f File) String() string {
	p := f.path
	if f.recursive {
		p = filepath.Join(p, Recursive)
	}
	return Files.name + ":" + p + ":" + f.Actions()
}

func clean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

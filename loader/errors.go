package loader

import "errors"

var (
	// ErrSymbolNotFound is returned when no tier can resolve a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrResourceNotFound is returned when a code source has no such resource.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrAlreadyInitialized is returned by a second Bind.
	ErrAlreadyInitialized = errors.New("loader already initialized")
	// ErrNilModule is returned when binding a nil module.
	ErrNilModule = errors.New("module must not be nil")
	// ErrNoCompiler is returned when an archive entry has no compiler for its extension.
	ErrNoCompiler = errors.New("no compiler registered for symbol file")
	// ErrBundleNotFound is returned by Open for an unknown bundle name.
	ErrBundleNotFound = errors.New("bundle not registered")
	// ErrDuplicateSymbol is returned when a catalog already holds a symbol.
	ErrDuplicateSymbol = errors.New("symbol already registered")
)

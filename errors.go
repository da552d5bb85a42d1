package modhost

import (
	"errors"
)

// Plugin manager errors
var (
	// Registration errors
	ErrUnknownPlugin             = errors.New("unknown plugin")
	ErrEntryNotFound             = errors.New("plugin entry symbol not found")
	ErrAlreadyRegistered         = errors.New("plugin already registered")
	ErrDependencyNotFound        = errors.New("dependency not found")
	ErrDependencyVersionMismatch = errors.New("dependency not matching required version expression")
	ErrNotInstantiable           = errors.New("plugin entry is not instantiable")
	ErrPluginNotFound            = errors.New("plugin not found")

	// Lifecycle errors
	ErrNotInitialized     = errors.New("plugin manager not initialized")
	ErrAlreadyInitialized = errors.New("plugin manager already initialized")
	ErrShutdown           = errors.New("plugin manager is shut down")
	ErrNilServiceRegistry = errors.New("service registry must not be nil")
	ErrPluginPanic        = errors.New("plugin panicked")

	// Data file errors
	ErrInvalidDataFile = errors.New("data file name escapes the plugin data directory")

	// Platform errors
	ErrPlatformStarted    = errors.New("platform already started")
	ErrPlatformNotStarted = errors.New("platform not started")
)

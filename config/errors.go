// Package config loads the host settings and the per-installation plugin
// list.
package config

import (
	"errors"
)

// Static errors for configuration package
var (
	ErrConfigNotPointer          = errors.New("config must be a pointer to a struct")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrInvalidGrant              = errors.New("invalid capability grant")
	ErrMissingPluginID           = errors.New("plugin list entry has no id")
	ErrDuplicatePluginID         = errors.New("plugin listed twice")
)

package policy

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/modhost/capability"
)

var (
	// ErrAccessDenied is the root of every security denial.
	ErrAccessDenied = errors.New("access denied")
	// ErrReplaceDenied is returned when a second policy installation is attempted.
	ErrReplaceDenied = fmt.Errorf("%w: decision point is already installed and cannot be replaced", ErrAccessDenied)
)

// DeniedError reports a capability check that failed.
type DeniedError struct {
	Origin   string
	Required capability.Capability
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s does not hold %s", e.Origin, e.Required)
}

// Unwrap lets errors.Is match ErrAccessDenied.
func (e *DeniedError) Unwrap() error { return ErrAccessDenied }

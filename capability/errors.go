package capability

import "errors"

var (
	// ErrEmptyActions is returned when an action list is empty.
	ErrEmptyActions = errors.New("action list must not be empty")
	// ErrUnknownAction is returned when an action list names an action the
	// resource does not define.
	ErrUnknownAction = errors.New("unknown action")
	// ErrUnknownResource is returned by Parse for an unsupported resource name.
	ErrUnknownResource = errors.New("unknown resource")
	// ErrEmptyPath is returned when a file capability has no path.
	ErrEmptyPath = errors.New("file capability path must not be empty")
)

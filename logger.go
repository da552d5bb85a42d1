package modhost

import "github.com/GoCodeAlone/modhost/logging"

// Logger is the structured key/value logger used throughout the host. See
// the logging package for the zap backed implementation.
type Logger = logging.Logger

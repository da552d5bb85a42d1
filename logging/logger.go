// Package logging defines the structured logging contract shared by every
// modhost component together with its zap backend.
package logging

// Logger defines the interface for host logging.
// Calls take a message followed by key/value pairs:
//
//	logger.Info("Plugin registered", "plugin", "core", "version", "1.0.0")
//
// The contract is compatible with slog, zap's SugaredLogger and most other
// structured loggers.
type Logger interface {
	// Info logs normal runtime events such as plugin registration.
	Info(msg string, args ...any)

	// Error logs failures that were handled, for example a plugin whose
	// initialize hook failed.
	Error(msg string, args ...any)

	// Warn logs unusual conditions that do not stop the host, such as a
	// plugin being granted every capability.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics like symbol resolution steps.
	Debug(msg string, args ...any)
}

// With returns a logger that prepends the given key/value pairs to every
// record. Loggers that support native child loggers are used directly.
func With(l Logger, args ...any) Logger {
	if l == nil {
		return Nop()
	}
	if w, ok := l.(interface{ With(args ...any) Logger }); ok {
		return w.With(args...)
	}
	return &prefixed{next: l, args: args}
}

type prefixed struct {
	next Logger
	args []any
}

func (p *prefixed) merge(args []any) []any {
	out := make([]any, 0, len(p.args)+len(args))
	out = append(out, p.args...)
	return append(out, args...)
}

func (p *prefixed) Info(msg string, args ...any)  { p.next.Info(msg, p.merge(args)...) }
func (p *prefixed) Error(msg string, args ...any) { p.next.Error(msg, p.merge(args)...) }
func (p *prefixed) Warn(msg string, args ...any)  { p.next.Warn(msg, p.merge(args)...) }
func (p *prefixed) Debug(msg string, args ...any) { p.next.Debug(msg, p.merge(args)...) }

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

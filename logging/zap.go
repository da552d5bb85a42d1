package logging

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidFormat is returned by New for an unknown log format.
var ErrInvalidFormat = errors.New("invalid log format")

// ZapLogger adapts a zap.SugaredLogger to Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap wraps an existing zap logger.
func NewZap(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// New builds a zap-backed Logger from a level (debug, info, warn, error) and
// a format (json or console). Empty values mean info and json.
func New(level, format string) (*ZapLogger, error) {
	var zapLevel zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("%w %q: must be \"json\" or \"console\"", ErrInvalidFormat, format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return NewZap(l), nil
}

func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// With returns a child logger carrying the given key/value pairs.
func (z *ZapLogger) With(args ...any) Logger {
	return &ZapLogger{sugar: z.sugar.With(args...)}
}

// Sync flushes buffered log entries.
func (z *ZapLogger) Sync() error {
	return z.sugar.Sync()
}

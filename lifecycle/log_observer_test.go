package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (c *captureLogger) log(level, msg string, args []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry{level, msg, args})
}

func (c *captureLogger) Info(msg string, args ...any)  { c.log("info", msg, args) }
func (c *captureLogger) Error(msg string, args ...any) { c.log("error", msg, args) }
func (c *captureLogger) Warn(msg string, args ...any)  { c.log("warn", msg, args) }
func (c *captureLogger) Debug(msg string, args ...any) { c.log("debug", msg, args) }

func TestLogObserver(t *testing.T) {
	logger := &captureLogger{}
	d := NewDispatcher(nil)
	require.NoError(t, d.RegisterObserver(NewLogObserver(logger)))

	d.Emit(context.Background(), EventTypePluginInitialized, "plugins", map[string]any{"plugin": "core", "global": false})
	d.Emit(context.Background(), EventTypePluginFailed, "plugins", map[string]any{"plugin": "ext", "error": "boom"})
	d.Emit(context.Background(), EventTypeServiceStarted, "services", nil)

	require.Len(t, logger.entries, 3)
	first := logger.entries[0]
	assert.Equal(t, "debug", first.level)
	assert.Equal(t, []any{"component", "events", "type", EventTypePluginInitialized, "source", "plugins"}, first.args[:6])
	assert.Equal(t, []any{"global", false, "plugin", "core"}, first.args[8:])

	assert.Equal(t, "warn", logger.entries[1].level)
	assert.Contains(t, logger.entries[1].args, "boom")
	assert.Equal(t, "debug", logger.entries[2].level)
	assert.Len(t, logger.entries[2].args, 8)
}

package lifecycle

import (
	"context"
	"slices"
	"strings"

	"github.com/GoCodeAlone/modhost/logging"
)

// LogObserverID is the id the log observer registers under.
const LogObserverID = "lifecycle.log"

// LogObserver writes every lifecycle event to a logger. Failure events are
// logged as warnings, everything else at debug level.
type LogObserver struct {
	logger logging.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger logging.Logger) *LogObserver {
	return &LogObserver{logger: logging.With(logger, "component", "events")}
}

// ObserverID implements Observer.
func (o *LogObserver) ObserverID() string { return LogObserverID }

// OnEvent implements Observer.
func (o *LogObserver) OnEvent(_ context.Context, event Event) error {
	args := []any{"type", event.Type(), "source", event.Source(), "id", event.ID()}
	var data map[string]any
	if len(event.Data()) > 0 && event.DataAs(&data) == nil {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			args = append(args, k, data[k])
		}
	}
	if strings.HasSuffix(event.Type(), ".failed") {
		o.logger.Warn("Lifecycle event", args...)
		return nil
	}
	o.logger.Debug("Lifecycle event", args...)
	return nil
}

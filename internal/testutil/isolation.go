// Package testutil holds helpers shared by modhost tests.
package testutil

import (
	"os"
	"testing"
)

// TrackedEnv lists the environment variables tests commonly mutate.
var TrackedEnv = []string{
	"MODHOST_PLUGINS_FILE",
	"MODHOST_DATA_DIRECTORY",
	"MODHOST_INSECURE",
	"MODHOST_LOG_LEVEL",
	"MODHOST_LOG_FORMAT",
	"MODHOST_ADMIN_ADDR",
	"MODHOST_WATCH_PLUGINS",
}

// Isolate snapshots the tracked environment variables plus any extra keys
// and registers a t.Cleanup that restores them. Safe to call multiple times
// in a test (cleanups run LIFO).
func Isolate(t *testing.T, extra ...string) {
	t.Helper()

	keys := append(append([]string(nil), TrackedEnv...), extra...)
	snapshot := map[string]*string{}
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			vCopy := v
			snapshot[k] = &vCopy
		} else {
			snapshot[k] = nil
		}
	}

	t.Cleanup(func() {
		for k, v := range snapshot {
			if v == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *v)
			}
		}
	})
}

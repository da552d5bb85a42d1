package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/modhost/logging"
)

// ErrWatcherClosed is returned when running a closed watcher.
var ErrWatcherClosed = errors.New("plugin list watcher closed")

// DefaultDebounce is the quiet period after the last change before the
// plugin list is reloaded.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a plugin list whenever its file changes. The parent
// directory is watched so that editors replacing the file are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*PluginList)
	logger   logging.Logger

	fsw       *fsnotify.Watcher
	closeOnce sync.Once
	closed    chan struct{}
}

// NewWatcher starts watching path. onChange receives every successfully
// reloaded list; load errors are logged.
func NewWatcher(path string, logger logging.Logger, onChange func(*PluginList)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   logging.With(logger, "component", "plugin-list-watcher"),
		fsw:      fsw,
		closed:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the quiet period. It must be called before Run.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.closed:
			return ErrWatcherClosed
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrWatcherClosed
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Warn("Plugin list watch error", "error", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	list, err := LoadPluginList(w.path)
	if err != nil {
		w.logger.Error("Failed to reload plugin list", "file", w.path, "error", err)
		return
	}
	w.logger.Info("Plugin list changed", "file", w.path, "plugins", len(list.Plugins))
	w.onChange(list)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closed)
		err = w.fsw.Close()
	})
	return err
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk and hands the
// freshly parsed Config to a callback. Editors typically rewrite files via
// rename, so the parent directory is watched rather than the file itself.
type Watcher struct {
	path     string
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onChange func(*Config), logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fw,
		logger:   logger.With().Str("component", "config_watcher").Logger(),
	}, nil
}

// Start blocks until ctx is cancelled, reloading on relevant file events.
// Bursts of write events are debounced so a single save triggers one reload.
func (w *Watcher) Start(ctx context.Context) {
	defer w.watcher.Close()

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(250 * time.Millisecond)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config watch error")
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("config reload failed, keeping previous settings")
		return
	}
	w.logger.Info().Str("path", w.path).Msg("config reloaded")
	w.onChange(cfg)
}

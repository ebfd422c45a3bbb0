package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ftahirops/xdiag/logging"
)

const reloadDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and passes every valid result to
// onChange. Invalid edits are logged and skipped. The parent directory is
// watched so editors that replace the file by rename are seen. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, sink logging.Sink, onChange func(Config)) error {
	log := logging.Safe(sink)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("config watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("config watcher errors channel closed")
			}
			log.LogError("config watcher", err)
		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.LogError("config reload rejected", err)
				continue
			}
			log.LogInfo("config reloaded", map[string]string{"path": path})
			onChange(cfg)
		}
	}
}

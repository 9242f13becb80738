package auth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the table from path whenever the file changes, until ctx
// is cancelled. The parent directory is watched so that editors replacing
// the file by rename are noticed too.
//
// A file that fails to load is logged and the current table is kept.
func (t *Table) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	path = filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch users file: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				t.reload(path, logger)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("users file watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (t *Table) reload(path string, logger *slog.Logger) {
	users, err := LoadFile(path)
	if err != nil {
		logger.Warn("users_reload_failed", "path", path, "error", err)
		return
	}
	t.Replace(users)
	logger.Info("users_reloaded", "path", path, "users", len(users))
}

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// reloadOps are the events that can leave new content at the watched path.
// Rename covers the target being replaced by a sibling file.
const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// Watch reloads path whenever it changes and hands the result to onChange.
// It watches the parent directory, so a save that writes a sibling file and
// renames it over path is seen like an in-place write. Watch blocks until
// ctx is cancelled.
//
// A reload that fails to load or validate is logged and skipped; onChange
// only ever sees valid configs.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(target)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}
	slog.Info("config: watching for changes", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&reloadOps == 0 {
				continue
			}
			cfg, err := Load(target)
			if err != nil {
				// A rename away from path lands here too; the next create reloads.
				slog.Warn("config: reload skipped, keeping previous config",
					"path", target, "op", ev.Op.String(), "err", err)
				continue
			}
			slog.Info("config: reloaded", "path", target, "op", ev.Op.String())
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

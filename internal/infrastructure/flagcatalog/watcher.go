package flagcatalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/media-upload-router/internal/core/flags"
)

const defaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog file on change and hands every valid catalog
// to onChange. Invalid edits are logged and the previous catalog stays in
// effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*flags.Catalog)) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create catalog watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so the directory is watched.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(path)

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		catalog, err := Load(path)
		if err != nil {
			slog.Warn("flag_catalog_reload_rejected", "path", path, "error", err)
			return
		}
		onChange(catalog)
		slog.Info("flag_catalog_reloaded", "path", path, "flags", len(catalog.Flags))
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("flag_catalog_watch_error", "path", path, "error", err)
		}
	}
}

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchPrefs reloads the preferences file into view whenever it changes on
// disk, until ctx is canceled. The parent directory is watched so editors
// that replace the file (write temp + rename) are still seen. A reload that
// fails to parse keeps the previous preferences.
func WatchPrefs(ctx context.Context, path string, view *PrefsView) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch prefs: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			prefs, err := LoadPrefs(path)
			if err != nil {
				log.Printf("[config] prefs reload failed, keeping previous: %v", err)
				continue
			}
			view.Set(prefs)
			log.Printf("[config] preferences reloaded from %s", path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[config] prefs watcher error: %v", err)
		}
	}
}

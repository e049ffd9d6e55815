package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OnChangeFunc is invoked with the freshly loaded configuration after the
// config file changes on disk. It runs on the watcher goroutine.
type OnChangeFunc func(*Config)

// Watch monitors the config file for changes and invokes onChange with the
// reloaded configuration. Reloads that fail to parse or validate are skipped.
// The watcher stops when the context is cancelled.
//
// Editors often replace files via rename, so the parent directory is watched
// and events are filtered by name. Bursts of events are debounced.
func Watch(ctx context.Context, path string, onChange OnChangeFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}

	base := filepath.Base(path)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		reload := func() {
			cfg, err := Load(path)
			if err != nil {
				return
			}
			if err := Validate(cfg); err != nil {
				return
			}
			onChange(cfg)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, reload)
			case <-watcher.Errors:
				// Transient watcher errors are not fatal; the next event
				// still triggers a reload.
			}
		}
	}()

	return nil
}

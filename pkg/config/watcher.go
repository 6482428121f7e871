package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events editors emit for one save.
const reloadDebounce = 500 * time.Millisecond

// WatchConfig watches the directories holding the given files and emits the
// path of a file after it was written, created or renamed into place and the
// events settled. Directories are watched instead of the files themselves so
// that atomic saves (write temp + rename) and files created after startup are
// noticed. The channel is closed when ctx is done.
func WatchConfig(ctx context.Context, files ...string) <-chan string {
	reloadCh := make(chan string, len(files)+1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	wanted := make(map[string]string, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		wanted[absPath] = file
		dirs[filepath.Dir(absPath)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("Could not watch directory", "dir", dir, "error", err)
		} else {
			slog.Debug("Watching configuration directory", "dir", dir)
		}
	}

	go func() {
		defer watcher.Close()

		var (
			mu      sync.Mutex
			timers  = make(map[string]*time.Timer)
			pending sync.WaitGroup
		)
		defer func() {
			mu.Lock()
			for _, t := range timers {
				if t.Stop() {
					pending.Done()
				}
			}
			mu.Unlock()
			pending.Wait()
			close(reloadCh)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				name, ok := wanted[filepath.Clean(event.Name)]
				if !ok {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if t, ok := timers[name]; ok && t.Stop() {
					pending.Done()
				}
				pending.Add(1)
				timers[name] = time.AfterFunc(reloadDebounce, func() {
					defer pending.Done()
					slog.Info("Configuration change detected", "file", name)
					select {
					case reloadCh <- name:
					default:
					}
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}

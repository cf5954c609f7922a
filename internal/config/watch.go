package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads path whenever it changes on disk and invokes onChange
// with the freshly parsed Config. Reload errors are logged and the file
// is left watched; callers keep running on the last-known-good Config.
// Mirrors the teacher's internal/config file-watch loop.
func Watch(path string, logger *slog.Logger, onChange func(*Config)) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("config: reload failed, keeping previous configuration", "path", path, "error", err)
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config: watch error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/sunup/pkg/observability"
)

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 200 * time.Millisecond

// Watch reloads the config file at path whenever it changes and passes each
// valid result to onChange. Invalid files are logged and ignored. Watch blocks
// until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// atomic rename-on-save and Kubernetes ConfigMap symlink swaps are seen.
func Watch(ctx context.Context, path string, logger *observability.Logger, onChange func(*Config)) error {
	if path == "" {
		return fmt.Errorf("config file path is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	logger = logger.WithField("config_file", absPath)
	logger.Info("Watching config file for changes")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(reloadDelay)
			pending = timer.C

		case <-pending:
			pending = nil
			cfg, err := Load(absPath)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid config file change")
				continue
			}
			logger.Info("Config file reloaded")
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Config watcher error")
		}
	}
}

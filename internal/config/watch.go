// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the config file whenever it changes on disk and delivers
// each valid reload to onChange. Invalid edits are logged and skipped, so
// a half-saved file never replaces a good config. Watch blocks until ctx
// is cancelled; run it in its own goroutine.
//
// The parent directory is watched rather than the file itself: editors
// that write via rename (vim, atomic saves) replace the inode and a
// file-level watch would go stale after the first save.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadFromPath(path)
			if err != nil {
				logger.Warn("config reload skipped", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

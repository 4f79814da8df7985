// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events one editor save produces.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
//
// The file's directory is watched rather than the file itself so that
// editors which save by rename are still seen.
//
// # Thread Safety
//
// Start must be called once. Stop is safe to call multiple times.
type Watcher struct {
	path     string
	onChange func(Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path.
//
// # Inputs
//
//   - path: The config file.
//   - onChange: Receives each successfully loaded and validated config.
//     Invalid files are logged and skipped.
//   - logger: Optional. Defaults to slog.Default().
//
// # Outputs
//
//   - *Watcher: Ready to Start.
//   - error: Non-nil if the path cannot be resolved or watched.
func NewWatcher(path string, onChange func(Config), logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		onChange: onChange,
		logger:   logger.With(slog.String("component", "config_watcher")),
		watcher:  fw,
	}, nil
}

// Start delivers reloads until ctx is done or Stop is called. It blocks;
// run it in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Debug("watching config", slog.String("path", w.path))
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", slog.String("error", err.Error()))

		case <-ctx.Done():
			w.stopTimer()
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected, keeping current config",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}
	w.logger.Info("config reloaded", slog.String("path", w.path))
	w.onChange(cfg)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Stop releases the underlying watcher.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.stopTimer()
		err = w.watcher.Close()
	})
	return err
}

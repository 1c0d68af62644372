// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rl

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of filesystem events into one
// reload. Editors and atomic renames often emit several events per save.
const DefaultWatchDebounce = 500 * time.Millisecond

// PolicyWatcher reloads the policy when its file changes on disk.
//
// # Description
//
// Watches the policy file's directory (the file itself disappears during
// atomic renames) and invokes onReload after changes settle for the
// debounce window. Callers writing the file themselves should call
// Suppress first so their own saves don't bounce back as reloads.
//
// # Thread Safety
//
// Start and Stop are safe to call from any goroutine. Stop is idempotent.
// onReload runs on the watcher goroutine.
type PolicyWatcher struct {
	path     string
	debounce time.Duration
	onReload func()

	watcher       *fsnotify.Watcher
	done          chan struct{}
	stopOnce      sync.Once
	suppressUntil atomic.Int64
}

// NewPolicyWatcher creates a watcher for the policy file at path.
// A non-positive debounce uses DefaultWatchDebounce.
func NewPolicyWatcher(path string, debounce time.Duration, onReload func()) (*PolicyWatcher, error) {
	if onReload == nil {
		return nil, fmt.Errorf("policy watcher: onReload must not be nil")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &PolicyWatcher{
		path:     filepath.Clean(path),
		debounce: debounce,
		onReload: onReload,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. The policy file does not need to exist yet; the
// watch is on its directory.
func (w *PolicyWatcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go w.loop()
	return nil
}

// Suppress ignores filesystem events for the next d, so a save by this
// process does not trigger a reload of its own write.
func (w *PolicyWatcher) Suppress(d time.Duration) {
	w.suppressUntil.Store(time.Now().Add(d).UnixNano())
}

// Stop shuts the watcher down. Idempotent.
func (w *PolicyWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// loop debounces events on the policy file into onReload calls.
func (w *PolicyWatcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Rename) {
				continue
			}
			if time.Now().UnixNano() < w.suppressUntil.Load() {
				continue
			}
			if timer != nil && !timer.Stop() {
				<-timerC
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timer = nil
			timerC = nil
			w.onReload()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are transient; the next save rewrites the file
		}
	}
}

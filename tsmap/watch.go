// SPDX-License-Identifier: LGPL-3.0-or-later
// Author: Michel Prunet - Safe Pic Technologies
package tsmap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"tsmap-recover.safepic.fr/logger"
)

// bursts of events from one save collapse into a single run
var watchDebounce = 100 * time.Millisecond

// Watch runs Convert once, then again every time mapPath is written or
// replaced, until ctx is done. onRun receives the outcome of each run.
// The parent directory is watched so editors that save by rename are seen.
func Watch(ctx context.Context, mapPath, outRoot string, opts Options, onRun func(*Result, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(mapPath)); err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	name := filepath.Base(mapPath)

	run := func() {
		res, err := Convert(ctx, mapPath, outRoot, opts)
		if onRun != nil {
			onRun(res, err)
		}
	}
	run()

	var timer *time.Timer
	var pending <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("watch: %s", ev)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			run()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch: %v", err)
		}
	}
}

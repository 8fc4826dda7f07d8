// Package watch records the files a downstream tool produces while a run is
// in progress.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/sraship/internal/ports"
)

// OutputWatcher watches one directory and collects the names of files
// created or written in it.
type OutputWatcher struct {
	dir    string
	logger ports.Logger

	mu        sync.Mutex
	artifacts map[string]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for dir. Nothing is watched until Start.
func New(dir string, logger ports.Logger) *OutputWatcher {
	return &OutputWatcher{
		dir:       dir,
		logger:    logger,
		artifacts: make(map[string]struct{}),
	}
}

// Start begins watching. Events that happen after Start returns are recorded.
func (w *OutputWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.watchLoop(watchCtx, watcher)

	w.logger.Debug("watching output", ports.String("dir", w.dir))
	return nil
}

func (w *OutputWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.record(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("output watcher error", ports.Err(err))
		}
	}
}

func (w *OutputWatcher) record(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, seen := w.artifacts[path]; !seen {
		w.logger.Debug("output file", ports.String("path", filepath.Base(path)))
	}
	w.artifacts[path] = struct{}{}
}

// Stop ends the watch and returns the recorded files in sorted order.
// Stop on a watcher that was never started returns nothing.
func (w *OutputWatcher) Stop() []string {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.artifacts))
	for p := range w.artifacts {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/leapstack-labs/leappipe/pkg/core"
)

// DebounceInterval is how long Watch waits for writes to settle.
const DebounceInterval = 100 * time.Millisecond

// Watch calls fn with the graph at path once, then again each time the file
// changes, until ctx is done. Load errors are passed to fn rather than ending
// the watch, so an editor's half-written save does not stop it.
//
// The parent directory is watched, since editors often replace files
// instead of writing them in place.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func(core.Graph, error)) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	// fn never runs concurrently with itself
	var mu sync.Mutex
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		g, err := Load(abs)
		fn(g, err)
	}

	reload()

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(DebounceInterval, func() {
				logger.Debug("pipeline file changed, reloading", "file", abs, "op", event.Op.String())
				reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DebounceInterval coalesces editor save storms into one reload (spec.md
// §4.5, grounded on the original implementation's notify_debouncer_mini
// usage at ~200ms-2s; abwart uses the tighter end of that range since a
// single file is watched, not a tree).
const DebounceInterval = 200 * time.Millisecond

// WatchStaticFile watches path for content changes and sends a signal on
// the returned channel, debounced so a burst of writes collapses into one
// reload. The channel is closed when ctx is done.
func WatchStaticFile(ctx context.Context, path string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		var pending bool
		var timer *time.Timer
		var timerC <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				pending = true
				if timer == nil {
					timer = time.NewTimer(DebounceInterval)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(DebounceInterval)
				}
				timerC = timer.C

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("static config file watcher error")

			case <-timerC:
				if pending {
					pending = false
					select {
					case out <- struct{}{}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce groups bursts of file events into one reload.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads the catalog whenever a .txt file in its directory is
// created, written, removed or renamed. It blocks until ctx is done.
// onReload, when non-nil, is called after every reload attempt.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration, onReload func(error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating jobs dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(c.dir); err != nil {
		return fmt.Errorf("watching %s: %w", c.dir, err)
	}
	c.log.Info("watching catalog", "dir", c.dir)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(debounce)
			pending = true

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn("catalog watcher error", "error", err)

		case <-timer.C:
			pending = false
			err := c.Reload()
			if err != nil {
				c.log.Error("catalog reload failed", "error", err)
			} else {
				c.log.Info("catalog reloaded", "entries", c.Snapshot().Len())
			}
			if onReload != nil {
				onReload(err)
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".txt") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

package status

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"kanoinit/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce collapses the create+rename burst of one atomic write.
const watchDebounce = 50 * time.Millisecond

// Watch calls fn with the current record, then again after every change to
// the status file, until ctx is done. The directory is watched rather than
// the file because every write replaces the file by rename.
func Watch(ctx context.Context, path string, fn func(Status)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	dir, base := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logging.Status("watching %s", path)

	last, haveLast := deliver(path, fn, Status{}, false)

	// Armed only while a change is pending.
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = time.After(watchDebounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryStatus).Warn("watch error: %v", err)

		case <-pending:
			pending = nil
			last, haveLast = deliver(path, fn, last, haveLast)
		}
	}
}

// deliver reads the file and calls fn when the record differs from last.
// Unreadable moments (mid-replace, removed) are skipped.
func deliver(path string, fn func(Status), last Status, haveLast bool) (Status, bool) {
	st, err := Read(path)
	if err != nil {
		logging.Get(logging.CategoryStatus).Debug("watch read skipped: %v", err)
		return last, haveLast
	}
	if haveLast && st.equal(last) {
		return last, haveLast
	}
	fn(st)
	return st, true
}

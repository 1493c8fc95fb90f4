package source

import (
	"context"
	"errors"
	iofs "io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const settleDelay = 50 * time.Millisecond

// Watch calls onChange with the full content of path every time it is
// written, and once at the start if it already exists. Bursts of writes are
// batched. Watch blocks until ctx is done and then returns nil.
//
// The parent directory is watched rather than the file itself so that
// editors that replace the file on save keep being followed.
func Watch(ctx context.Context, path string, onChange func(content string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	last := ""
	emit := func() {
		data, err := os.ReadFile(abs)
		if errors.Is(err, iofs.ErrNotExist) {
			return
		}
		if err != nil {
			slog.Warn("failed to read watched file", "path", abs, "err", err)
			return
		}
		if content := string(data); content != last {
			last = content
			onChange(content)
		}
	}
	emit()

	timer := time.NewTimer(settleDelay)
	timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(settleDelay)
			}

		case <-timer.C:
			emit()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "err", err)

		case <-ctx.Done():
			emit()
			return nil
		}
	}
}

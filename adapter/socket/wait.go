package socket

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WaitForSocket blocks until path exists or ctx ends. It watches the parent
// directory so an engine that is still starting up is picked up as soon as
// it creates its socket.
func WaitForSocket(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = w.Close()
	}()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	// The socket may have appeared before the watch was in place.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if filepath.Clean(ev.Name) == path && ev.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			return fmt.Errorf("watch %s: %w", dir, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

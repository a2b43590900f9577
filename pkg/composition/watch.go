package composition

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/tauraamui/framecache/pkg/log"
	"github.com/tauraamui/xerror"
)

// Watch reloads c from path every time the file is written or replaced,
// onReload is invoked after each attempt. Blocks until ctx is cancelled.
func Watch(ctx context.Context, c *Composition, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return xerror.Errorf("unable to create composition watcher: %w", err)
	}
	defer watcher.Close()

	// editors tend to replace files, so watch the parent directory
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return xerror.Errorf("unable to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(evt.Name) != target {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			log.Debug("Composition file changed: %s", path)
			err := Reload(c, path)
			if err != nil {
				log.Error("Unable to reload composition [%s]: %v", path, err)
			}
			if onReload != nil {
				onReload(err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("Composition watcher error: %v", err)
		}
	}
}

package process

import (
	"context"

	"github.com/tauraamui/framecache/pkg/composition"
	"github.com/tauraamui/framecache/pkg/log"
)

// WatchComposition keeps comp in sync with the file at path until the
// process is stopped. onReload runs after every reload attempt.
func WatchComposition(comp *composition.Composition, path string, onReload func(error)) func(context.Context) []chan interface{} {
	return func(ctx context.Context) []chan interface{} {
		log.Info("Watching composition [%s]", path)
		done := make(chan interface{})
		go func() {
			defer close(done)
			if err := watch(ctx, comp, path, onReload); err != nil {
				log.Error("Stopped watching composition [%s]: %v", path, err)
			}
		}()
		return []chan interface{}{done}
	}
}

var watch = composition.Watch

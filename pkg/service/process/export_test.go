package process

import (
	"context"

	"github.com/tauraamui/framecache/pkg/composition"
)

func OverloadWatch(overload func(context.Context, *composition.Composition, string, func(error)) error) func() {
	watchRef := watch
	watch = overload
	return func() { watch = watchRef }
}

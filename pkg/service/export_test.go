package service

import (
	"context"

	"github.com/tauraamui/framecache/pkg/composition"
)

func OverloadWatchComposition(
	overload func(*composition.Composition, string, func(error)) func(context.Context) []chan interface{},
) func() {
	watchRef := watchComposition
	watchComposition = overload
	return func() { watchComposition = watchRef }
}

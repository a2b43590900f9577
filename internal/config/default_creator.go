package config

import "github.com/tauraamui/framecache/pkg/configdef"

type defaultCreator struct{}

func (d defaultCreator) Create() error {
	return create()
}

// DefaultCreateResolver writes the default config file and resolves the
// values of whichever config file is in place.
func DefaultCreateResolver() configdef.CreateResolver {
	return defaultCreateResolver{}
}

type defaultCreateResolver struct {
	defaultCreator
	defaultResolver
}

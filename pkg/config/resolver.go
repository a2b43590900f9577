package config

import (
	"github.com/tauraamui/framecache/internal/config"
	"github.com/tauraamui/framecache/pkg/configdef"
)

type Resolver interface {
	configdef.Resolver
}

func DefaultResolver() Resolver {
	return config.DefaultResolver()
}

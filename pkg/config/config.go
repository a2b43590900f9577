package config

import (
	"github.com/tauraamui/framecache/internal/config"
	"github.com/tauraamui/framecache/pkg/configdef"
)

type CreateResolver interface {
	configdef.CreateResolver
}

func DefaultCreateResolver() CreateResolver {
	return config.DefaultCreateResolver()
}

package config

import (
	"github.com/tauraamui/framecache/internal/config"
	"github.com/tauraamui/framecache/pkg/configdef"
)

type Destroyer interface {
	configdef.Destroyer
}

func DefaultDestroyer() Destroyer {
	return config.DefaultDestroyer()
}

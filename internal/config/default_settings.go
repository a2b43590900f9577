package config

import (
	"path/filepath"

	"github.com/tauraamui/framecache/pkg/configdef"
	"github.com/tauraamui/xerror"
)

type defaultSettingKey uint

const (
	MAXFRAMERATE defaultSettingKey = 0x0
	SCALE        defaultSettingKey = 0x1
	STOREBACKEND defaultSettingKey = 0x2
	SEQUENCEDIR  defaultSettingKey = 0x3
)

var defaultSettings = map[defaultSettingKey]interface{}{
	MAXFRAMERATE: 30.0,
	SCALE:        1.0,
	STOREBACKEND: configdef.StoreBackendFile,
	SEQUENCEDIR:  "sequences",
}

func defaultStoreLocation() (string, error) {
	cacheDir, err := userCacheDir()
	if err != nil {
		return "", xerror.Errorf("unable to resolve sequence store location: %w", err)
	}
	return filepath.Join(cacheDir, vendorName, appName, defaultSettings[SEQUENCEDIR].(string)), nil
}

// applyDefaults fills every unset value of v.
func applyDefaults(v *configdef.Values) error {
	if v.MaxFrameRate == 0 {
		v.MaxFrameRate = defaultSettings[MAXFRAMERATE].(float64)
	}
	if v.Scale == 0 {
		v.Scale = defaultSettings[SCALE].(float64)
	}
	if len(v.StoreBackend) == 0 {
		v.StoreBackend = defaultSettings[STOREBACKEND].(string)
	}
	if len(v.StoreLocation) == 0 {
		loc, err := defaultStoreLocation()
		if err != nil {
			return err
		}
		v.StoreLocation = loc
	}
	if v.Compositions == nil {
		v.Compositions = []string{}
	}
	return nil
}

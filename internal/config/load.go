package config

import (
	"github.com/tauraamui/framecache/pkg/configdef"
	"github.com/tauraamui/framecache/pkg/log"
)

func load() (configdef.Values, error) {
	var values configdef.Values
	configPath, err := resolveConfigPath()
	if err != nil {
		return configdef.Values{}, err
	}

	log.Info("Resolved config file location: %s", configPath)

	file, err := readConfigFile(configPath)
	if err != nil {
		return configdef.Values{}, err
	}

	if err := unmarshal(file, &values); err != nil {
		return configdef.Values{}, err
	}

	if err = values.RunValidate(); err != nil {
		return configdef.Values{}, err
	}

	if err := applyDefaults(&values); err != nil {
		return configdef.Values{}, err
	}

	return values, nil
}

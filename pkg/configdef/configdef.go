package configdef

import (
	"errors"
	"fmt"

	"gopkg.in/dealancer/validate.v2"
)

const (
	StoreBackendFile   = "file"
	StoreBackendBadger = "badger"
)

// Values are the settings framecache reads from its config file. Zero
// numeric values and empty strings are replaced by defaults on load.
type Values struct {
	Debug         bool     `json:"debug"`
	MaxFrameRate  float64  `json:"max_frame_rate" validate:"gte=0 & lte=120"`
	Scale         float64  `json:"scale" validate:"gte=0 & lte=8"`
	StoreBackend  string   `json:"store_backend"`
	StoreLocation string   `json:"store_location"`
	CatalogPath   string   `json:"catalog_path"`
	Compositions  []string `json:"compositions"`
}

func (v Values) RunValidate() error {
	if err := validate.Validate(&v); err != nil {
		return err
	}
	return v.Validate()
}

func (v Values) Validate() error {
	const validationErrorHeader = "validation failed: %w"
	if hasDupCompositions(v.Compositions) {
		return fmt.Errorf(validationErrorHeader, errors.New("composition paths must be unique"))
	}
	switch v.StoreBackend {
	case "", StoreBackendFile, StoreBackendBadger:
	default:
		return fmt.Errorf(validationErrorHeader, fmt.Errorf("unknown store backend %q", v.StoreBackend))
	}
	return nil
}

func hasDupCompositions(paths []string) bool {
	seen := map[string]struct{}{}
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			return true
		}
		seen[p] = struct{}{}
	}
	return false
}

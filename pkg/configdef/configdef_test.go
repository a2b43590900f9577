package configdef_test

import (
	"encoding/json"
	"testing"

	"github.com/matryer/is"
	"github.com/tauraamui/framecache/pkg/configdef"
)

func TestValidateEmptyConfigPasses(t *testing.T) {
	is := is.New(t)
	body := `{}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.NoErr(config.RunValidate())
}

func TestValidatePopulatedConfigPassesValidation(t *testing.T) {
	is := is.New(t)
	body := `{
			"debug": true,
			"max_frame_rate": 60,
			"scale": 0.5,
			"store_backend": "badger",
			"store_location": "/var/cache/framecache",
			"compositions": ["/anims/intro.json", "/anims/outro.json"]
		}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.NoErr(config.RunValidate())
}

func TestValidateFailsForUnknownStoreBackend(t *testing.T) {
	is := is.New(t)
	body := `{"store_backend": "redis"}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), `validation failed: unknown store backend "redis"`)
}

func TestValidateFailsForMaxFrameRateAboveLimit(t *testing.T) {
	is := is.New(t)
	body := `{"max_frame_rate": 240}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), `Validation error in field "MaxFrameRate" of type "float64" using validator "lte=120"`)
}

func TestValidateFailsForNegativeScale(t *testing.T) {
	is := is.New(t)
	body := `{"scale": -1}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), `Validation error in field "Scale" of type "float64" using validator "gte=0"`)
}

func TestValidateFailsForDuplicateCompositions(t *testing.T) {
	is := is.New(t)
	body := `{"compositions": ["/anims/intro.json", "/anims/intro.json"]}`
	config := configdef.Values{}
	is.NoErr(json.Unmarshal([]byte(body), &config))
	is.Equal(config.RunValidate().Error(), "validation failed: composition paths must be unique")
}

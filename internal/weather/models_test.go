package weather

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTemperature_DerivesMissingUnit(t *testing.T) {
	c := 20.0
	tp := NewTemperature(&c, nil)
	require.NotNil(t, tp.F)
	require.Equal(t, 68.0, *tp.F)

	f := 55.0
	tp = NewTemperature(nil, &f)
	require.NotNil(t, tp.C)
	// 12.77... rounds to the nearest whole degree
	require.Equal(t, 13.0, *tp.C)

	c, f = 21.0, 70.0
	tp = NewTemperature(&c, &f)
	require.Equal(t, 21.0, *tp.C)
	require.Equal(t, 70.0, *tp.F)
}

func TestWeatherContext_Language(t *testing.T) {
	require.Equal(t, "en-US", WeatherContext{}.Language())
	wc := WeatherContext{Languages: []string{"fr-FR", "en-US"}}
	require.Equal(t, "fr-FR", wc.Language())
}

func TestWeatherContext_CityName(t *testing.T) {
	wc := WeatherContext{
		Location: Location{
			City:      "Gothenburg",
			CityNames: map[string]string{"sv-SE": "Göteborg"},
		},
		Languages: []string{"sv-SE"},
	}
	require.Equal(t, "Göteborg", wc.CityName("Gothenburg"))

	wc.Languages = []string{"en-US"}
	require.Equal(t, "Gothenburg", wc.CityName("Gothenburg"))
	require.Equal(t, "Gothenburg", wc.CityName(""))
}

// Package weather implements the suggestion backend that resolves a coarse
// geolocation against the weather provider and assembles cached reports.
package weather

import (
	"math"
	"time"
)

// Location is the caller's coarse geolocation. Regions are ordered
// most-specific first by convention, though the ordering is not trusted:
// per-country policy decides which candidates are actually probed.
type Location struct {
	Country    string            `json:"country"`
	Regions    []string          `json:"regions,omitempty"`
	City       string            `json:"city"`
	PostalCode string            `json:"postal_code,omitempty"`
	DMA        int               `json:"dma,omitempty"`
	Key        string            `json:"key,omitempty"`
	CityNames  map[string]string `json:"city_names,omitempty"`
}

// primaryRegion returns the first listed region or "".
func (l Location) primaryRegion() string {
	if len(l.Regions) == 0 {
		return ""
	}
	return l.Regions[0]
}

// WeatherContext carries one incoming request's location, language
// preferences and its source tag. The source affects URL decoration only.
// Immutable once constructed; safe to share.
type WeatherContext struct {
	Location  Location
	Languages []string
	Source    string
}

const defaultLanguage = "en-US"

func (wc WeatherContext) Language() string {
	if len(wc.Languages) == 0 || wc.Languages[0] == "" {
		return defaultLanguage
	}
	return wc.Languages[0]
}

// CityName prefers the caller-supplied localized override for the request
// language over the provider's display name.
func (wc WeatherContext) CityName(providerName string) string {
	if n, ok := wc.Location.CityNames[wc.Language()]; ok && n != "" {
		return n
	}
	if providerName != "" {
		return providerName
	}
	return wc.Location.City
}

// ProviderLocation is the provider's resolved place. Immutable once
// constructed; the JSON shape is what the geolocation cache script decodes,
// so the "key" field name is load-bearing.
type ProviderLocation struct {
	Key                  string `json:"key"`
	LocalizedName        string `json:"localized_name"`
	AdministrativeAreaID string `json:"administrative_area_id"`
	CountryName          string `json:"country_name"`
}

// Temperature holds degrees in both units. A missing unit is derived by
// conversion rounded to the nearest whole degree at construction time and
// never recomputed.
type Temperature struct {
	C *float64 `json:"c,omitempty"`
	F *float64 `json:"f,omitempty"`
}

func NewTemperature(c, f *float64) Temperature {
	t := Temperature{C: c, F: f}
	switch {
	case c != nil && f == nil:
		d := math.Round(*c*9/5 + 32)
		t.F = &d
	case f != nil && c == nil:
		d := math.Round((*f - 32) * 5 / 9)
		t.C = &d
	}
	return t
}

func Celsius(c float64) Temperature {
	return NewTemperature(&c, nil)
}

type CurrentConditions struct {
	URL         string      `json:"url"`
	Summary     string      `json:"summary"`
	IconID      int         `json:"icon_id"`
	Temperature Temperature `json:"temperature"`
}

type Forecast struct {
	URL     string      `json:"url"`
	Summary string      `json:"summary"`
	High    Temperature `json:"high"`
	Low     Temperature `json:"low"`
}

type HourlyForecast struct {
	Time          time.Time   `json:"time"`
	Summary       string      `json:"summary"`
	IconID        int         `json:"icon_id"`
	Temperature   Temperature `json:"temperature"`
	Precipitation int         `json:"precipitation_probability"`
}

// LocationCompletion is one autocomplete candidate.
type LocationCompletion struct {
	Key           string `json:"key"`
	LocalizedName string `json:"localized_name"`
}

// WeatherReport is the assembled output. Constructed once per request, never
// cached itself; only its constituents are.
type WeatherReport struct {
	CityName   string            `json:"city_name"`
	RegionCode string            `json:"region_code"`
	Current    CurrentConditions `json:"current_conditions"`
	Forecast   Forecast          `json:"forecast"`
	Hourly     []HourlyForecast  `json:"hourly_forecasts,omitempty"`
	TTL        time.Duration     `json:"ttl"`
}

package weather

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Provider endpoint paths. These double as cache-key base paths, so changing
// one invalidates the corresponding entries.
const (
	pathAutocomplete = "locations/v1/cities/autocomplete.json"

	tmplCurrentConditions = "currentconditions/v1/%s.json"
	tmplForecast          = "forecasts/v1/daily/1day/%s.json"
	tmplHourly            = "forecasts/v1/hourly/1hour/%s.json"
)

func citySearchPath(country, region string) string {
	if region == "" {
		return fmt.Sprintf("locations/v1/cities/%s/search.json", url.PathEscape(country))
	}
	return fmt.Sprintf("locations/v1/cities/%s/%s/search.json", url.PathEscape(country), url.PathEscape(region))
}

func citySearchParams(city, language string) url.Values {
	p := url.Values{}
	p.Set("q", city)
	p.Set("language", language)
	return p
}

func dataParams(language string) url.Values {
	p := url.Values{}
	p.Set("language", language)
	p.Set("details", "true")
	return p
}

func hourlyParams(language string) url.Values {
	p := url.Values{}
	p.Set("language", language)
	p.Set("metric", "true")
	return p
}

// Wire shapes. Field names follow the provider's JSON; every processor
// validates the parts the backend consumes and reports anything else as a
// shape mismatch.

type wireArea struct {
	ID            string `json:"ID"`
	LocalizedName string `json:"LocalizedName"`
}

type wireLocation struct {
	Key                string   `json:"Key"`
	LocalizedName      string   `json:"LocalizedName"`
	AdministrativeArea wireArea `json:"AdministrativeArea"`
	Country            wireArea `json:"Country"`
}

func processLocationSearch(body []byte) (interface{}, bool) {
	var locs []wireLocation
	if err := json.Unmarshal(body, &locs); err != nil {
		return nil, false
	}
	if len(locs) == 0 {
		// valid response, place unknown to the provider
		return nil, true
	}
	first := locs[0]
	if first.Key == "" || first.LocalizedName == "" {
		return nil, false
	}
	return &ProviderLocation{
		Key:                  first.Key,
		LocalizedName:        first.LocalizedName,
		AdministrativeAreaID: first.AdministrativeArea.ID,
		CountryName:          first.Country.LocalizedName,
	}, true
}

type wireUnit struct {
	Value float64 `json:"Value"`
	Unit  string  `json:"Unit"`
}

func (u wireUnit) temperature() Temperature {
	if u.Unit == "F" {
		return NewTemperature(nil, &u.Value)
	}
	return NewTemperature(&u.Value, nil)
}

type wireCurrent struct {
	WeatherText string `json:"WeatherText"`
	WeatherIcon int    `json:"WeatherIcon"`
	Temperature struct {
		Metric   wireUnit `json:"Metric"`
		Imperial wireUnit `json:"Imperial"`
	} `json:"Temperature"`
	Link string `json:"Link"`
}

func processCurrentConditions(body []byte) (interface{}, bool) {
	var cur []wireCurrent
	if err := json.Unmarshal(body, &cur); err != nil {
		return nil, false
	}
	if len(cur) == 0 {
		return nil, true
	}
	first := cur[0]
	if first.WeatherText == "" || first.Link == "" {
		return nil, false
	}
	return &CurrentConditions{
		URL:     first.Link,
		Summary: first.WeatherText,
		IconID:  first.WeatherIcon,
		Temperature: NewTemperature(
			&first.Temperature.Metric.Value,
			&first.Temperature.Imperial.Value,
		),
	}, true
}

type wireForecast struct {
	Headline struct {
		Text string `json:"Text"`
		Link string `json:"Link"`
	} `json:"Headline"`
	DailyForecasts []struct {
		Temperature struct {
			Maximum wireUnit `json:"Maximum"`
			Minimum wireUnit `json:"Minimum"`
		} `json:"Temperature"`
	} `json:"DailyForecasts"`
}

func processForecast(body []byte) (interface{}, bool) {
	var fc wireForecast
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, false
	}
	if len(fc.DailyForecasts) == 0 || fc.Headline.Link == "" {
		return nil, false
	}
	day := fc.DailyForecasts[0]
	return &Forecast{
		URL:     fc.Headline.Link,
		Summary: fc.Headline.Text,
		High:    day.Temperature.Maximum.temperature(),
		Low:     day.Temperature.Minimum.temperature(),
	}, true
}

type wireHourly struct {
	DateTime                 time.Time `json:"DateTime"`
	IconPhrase               string    `json:"IconPhrase"`
	WeatherIcon              int       `json:"WeatherIcon"`
	Temperature              wireUnit  `json:"Temperature"`
	PrecipitationProbability int       `json:"PrecipitationProbability"`
}

func processHourlyForecasts(body []byte) (interface{}, bool) {
	var hours []wireHourly
	if err := json.Unmarshal(body, &hours); err != nil {
		return nil, false
	}
	out := make([]HourlyForecast, 0, len(hours))
	for _, h := range hours {
		if h.IconPhrase == "" {
			return nil, false
		}
		out = append(out, HourlyForecast{
			Time:          h.DateTime,
			Summary:       h.IconPhrase,
			IconID:        h.WeatherIcon,
			Temperature:   h.Temperature.temperature(),
			Precipitation: h.PrecipitationProbability,
		})
	}
	return out, true
}

type wireCompletion struct {
	Key           string `json:"Key"`
	LocalizedName string `json:"LocalizedName"`
}

func processAutocomplete(body []byte) (interface{}, bool) {
	var comps []wireCompletion
	if err := json.Unmarshal(body, &comps); err != nil {
		return nil, false
	}
	out := make([]LocationCompletion, 0, len(comps))
	for _, c := range comps {
		if c.Key == "" {
			return nil, false
		}
		out = append(out, LocationCompletion{Key: c.Key, LocalizedName: c.LocalizedName})
	}
	return out, true
}

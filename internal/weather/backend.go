package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/suggestkit/weather-backend/internal/cache/bundle"
	"github.com/suggestkit/weather-backend/internal/cache/cachekey"
	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
	"github.com/suggestkit/weather-backend/internal/core/observability"
)

// Config holds the backend's tunables. TTL floors guard against a provider
// expiry sooner than what a cache entry is worth keeping for.
type Config struct {
	TTLFloorData     time.Duration
	TTLFloorLocation time.Duration

	// PartnerParam/PartnerCodes decorate report URLs per request source at
	// assembly time; cached entries stay source-agnostic.
	PartnerParam string
	PartnerCodes map[string]string
}

func (c *Config) withDefaults() {
	if c.TTLFloorData <= 0 {
		c.TTLFloorData = 5 * time.Minute
	}
	if c.TTLFloorLocation <= 0 {
		c.TTLFloorLocation = 7 * 24 * time.Hour
	}
	if c.PartnerParam == "" {
		c.PartnerParam = "partner"
	}
}

// Backend composes the cache reader, the pathfinder and the upstream fetcher
// into the single entry point the suggestion layer calls.
type Backend struct {
	cache      *redisstore.Client
	reader     *bundle.Reader
	fetcher    *Fetcher
	pathfinder *Pathfinder
	cfg        Config
	log        *slog.Logger
}

func NewBackend(cache *redisstore.Client, fetcher *Fetcher, memory RegionMemory, cfg Config, log *slog.Logger) *Backend {
	cfg.withDefaults()
	return &Backend{
		cache:      cache,
		reader:     bundle.NewReader(cache),
		fetcher:    fetcher,
		pathfinder: NewPathfinder(memory, log),
		cfg:        cfg,
		log:        log,
	}
}

// Shutdown releases the HTTP client's idle connections and the cache
// connection.
func (b *Backend) Shutdown() error {
	b.fetcher.client.CloseIdleConnections()
	return b.cache.Close()
}

func dataKeys(lang, locKey string) (cc, fc, hr string) {
	cc = cachekey.Key(fmt.Sprintf(tmplCurrentConditions, locKey), dataParams(lang))
	fc = cachekey.Key(fmt.Sprintf(tmplForecast, locKey), dataParams(lang))
	hr = cachekey.Key(fmt.Sprintf(tmplHourly, locKey), hourlyParams(lang))
	return cc, fc, hr
}

// keyTemplates carries the %s placeholder through the key derivation so the
// geolocation script can substitute the provider location key server-side.
func keyTemplates(lang string) bundle.KeyTemplates {
	return bundle.KeyTemplates{
		Current:  cachekey.Key(tmplCurrentConditions, dataParams(lang)),
		Forecast: cachekey.Key(tmplForecast, dataParams(lang)),
		Hourly:   cachekey.Key(tmplHourly, hourlyParams(lang)),
	}
}

func locationCacheKey(country, region, city, lang string) string {
	return cachekey.Key(citySearchPath(country, region), citySearchParams(city, lang))
}

// PurgeKeys lists every cache key a purge of the given place must cover: the
// city-search entry plus the per-language data entries when the provider
// location key is known. An empty language list means the default language.
func PurgeKeys(country, region, city, locationKey string, languages []string) []string {
	if len(languages) == 0 {
		languages = []string{defaultLanguage}
	}
	var keys []string
	for _, lang := range languages {
		if city != "" {
			keys = append(keys, locationCacheKey(country, region, city, lang))
		}
		if locationKey != "" {
			cc, fc, hr := dataKeys(lang, locationKey)
			keys = append(keys, cc, fc, hr)
		}
	}
	return keys
}

// GetWeatherReport resolves the context's location, reconciles cached
// constituents with concurrent upstream fetches and returns one consistent
// report. A (nil, nil) return means the provider has no data for the place.
func (b *Backend) GetWeatherReport(ctx context.Context, wc WeatherContext) (*WeatherReport, error) {
	lang := wc.Language()

	if key := wc.Location.Key; key != "" {
		ccKey, fcKey, hrKey := dataKeys(lang, key)
		bdl, err := b.reader.ByLocationKey(ctx, ccKey, fcKey, hrKey)
		if err != nil {
			return nil, err
		}
		return b.makeReport(ctx, wc, lang, bdl, wc.Location.primaryRegion())
	}

	probe := func(ctx context.Context, city, region string) (*bundle.Bundle, error) {
		bdl, err := b.reader.ByGeolocation(ctx,
			locationCacheKey(wc.Location.Country, region, city, lang),
			keyTemplates(lang))
		if err != nil {
			// cache transport failure aborts the whole search
			return nil, err
		}
		if bdl.Location == nil {
			// no cached resolution for this candidate. Geocode it live; an
			// expired location entry must be refreshed, never trusted.
			v, _, err := b.fetcher.Request(ctx,
				citySearchPath(wc.Location.Country, region),
				citySearchParams(city, lang),
				processLocationSearch, b.cfg.TTLFloorLocation, true)
			if err != nil {
				return nil, err
			}
			pl, _ := v.(*ProviderLocation)
			if pl == nil {
				return nil, nil
			}
			blob, err := json.Marshal(pl)
			if err != nil {
				return nil, err
			}
			bdl.Location = blob
		}
		return &bdl, nil
	}

	res, err := b.pathfinder.Find(ctx, wc.Location, probe)
	switch {
	case errors.Is(err, errCitySkipped), errors.Is(err, errCityNotFound):
		b.log.Debug("location unresolved",
			"country", wc.Location.Country,
			"city", wc.Location.City,
			"skipped", errors.Is(err, errCitySkipped))
		return nil, ErrMissingLocationKey
	case err != nil:
		return nil, err
	}
	return b.makeReport(ctx, wc, lang, *res.Bundle, res.Region)
}

func (b *Backend) makeReport(ctx context.Context, wc WeatherContext, lang string, bdl bundle.Bundle, region string) (*WeatherReport, error) {
	loc := decodeLocation(bdl.Location)
	if loc == nil && wc.Location.Key != "" {
		// the request carries a valid key, only descriptive metadata is
		// missing
		loc = &ProviderLocation{
			Key:                  wc.Location.Key,
			LocalizedName:        wc.Location.City,
			AdministrativeAreaID: wc.Location.primaryRegion(),
			CountryName:          wc.Location.Country,
		}
	}

	current := decodeBlob[CurrentConditions](bdl.Current)
	forecast := decodeBlob[Forecast](bdl.Forecast)
	var hourly []HourlyForecast
	hourlyCached := bdl.Hourly != nil && json.Unmarshal(bdl.Hourly, &hourly) == nil

	if loc != nil && current != nil && forecast != nil && hourlyCached && bdl.TTL >= 0 {
		observability.IncWeatherReport("cache")
		return b.assemble(wc, loc, region, current, forecast, hourly, bdl.TTL), nil
	}

	if loc == nil {
		return nil, ErrMissingLocationKey
	}

	ccTTL, fcTTL := bundle.NoTTL, bundle.NoTTL
	fetched := 0
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	// Missing constituents are fetched concurrently; cached ones are left in
	// place so the join below is uniform regardless of origin. Errors are
	// collected, never short-circuited: partial diagnostics matter.
	if current == nil {
		fetched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ttl, err := b.fetcher.Request(ctx,
				fmt.Sprintf(tmplCurrentConditions, loc.Key), dataParams(lang),
				processCurrentConditions, b.cfg.TTLFloorData, true)
			if err != nil {
				fail(err)
				return
			}
			current, _ = v.(*CurrentConditions)
			ccTTL = ttl
		}()
	}
	if forecast == nil {
		fetched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, ttl, err := b.fetcher.Request(ctx,
				fmt.Sprintf(tmplForecast, loc.Key), dataParams(lang),
				processForecast, b.cfg.TTLFloorData, true)
			if err != nil {
				fail(err)
				return
			}
			forecast, _ = v.(*Forecast)
			fcTTL = ttl
		}()
	}
	if !hourlyCached {
		fetched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := b.fetcher.Request(ctx,
				fmt.Sprintf(tmplHourly, loc.Key), hourlyParams(lang),
				processHourlyForecasts, b.cfg.TTLFloorData, true)
			if err != nil {
				fail(err)
				return
			}
			hourly, _ = v.([]HourlyForecast)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, &AggregateError{Errs: errs}
	}
	if current == nil || forecast == nil {
		// soft "no data" from a processor; not an error
		b.log.Warn("provider returned no usable weather data",
			"location_key", loc.Key)
		return nil, nil
	}

	// Report ttl floors on current conditions and forecast only; hourly is
	// deliberately left out of the computation.
	ttl := reportTTL(b.cfg.TTLFloorData, bdl.TTL, ccTTL, fcTTL)

	origin := "mixed"
	if fetched == 3 {
		origin = "upstream"
	}
	observability.IncWeatherReport(origin)
	return b.assemble(wc, loc, region, current, forecast, hourly, ttl), nil
}

func (b *Backend) assemble(wc WeatherContext, loc *ProviderLocation, region string, cur *CurrentConditions, fc *Forecast, hourly []HourlyForecast, ttl time.Duration) *WeatherReport {
	current := *cur
	forecast := *fc
	current.URL = b.decorate(current.URL, wc.Source)
	forecast.URL = b.decorate(forecast.URL, wc.Source)

	regionCode := loc.AdministrativeAreaID
	if regionCode == "" {
		regionCode = region
	}
	return &WeatherReport{
		CityName:   wc.CityName(loc.LocalizedName),
		RegionCode: regionCode,
		Current:    current,
		Forecast:   forecast,
		Hourly:     hourly,
		TTL:        ttl,
	}
}

// decorate appends the partner code for the request source. Applied to
// in-memory copies only, after any cache write.
func (b *Backend) decorate(raw, source string) string {
	code := b.cfg.PartnerCodes[source]
	if code == "" || raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set(b.cfg.PartnerParam, code)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetLocationCompletions serves the provider's name autocompletion,
// cache-aside like everything else.
func (b *Backend) GetLocationCompletions(ctx context.Context, wc WeatherContext, query string) ([]LocationCompletion, error) {
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("language", wc.Language())

	key := cachekey.Key(pathAutocomplete, params)
	blob, err := b.cache.Get(ctx, key)
	switch {
	case err == nil:
		var out []LocationCompletion
		if json.Unmarshal(blob, &out) == nil {
			return out, nil
		}
	case !errors.Is(err, redisstore.ErrNotFound):
		return nil, err
	}

	v, _, err := b.fetcher.Request(ctx, pathAutocomplete, params,
		processAutocomplete, b.cfg.TTLFloorData, true)
	if err != nil {
		return nil, err
	}
	comps, _ := v.([]LocationCompletion)
	return comps, nil
}

func decodeLocation(blob []byte) *ProviderLocation {
	if blob == nil {
		return nil
	}
	var pl ProviderLocation
	if err := json.Unmarshal(blob, &pl); err != nil || pl.Key == "" {
		return nil
	}
	return &pl
}

func decodeBlob[T any](blob []byte) *T {
	if blob == nil {
		return nil
	}
	var v T
	if err := json.Unmarshal(blob, &v); err != nil {
		return nil
	}
	return &v
}

func reportTTL(floor, bundleTTL, ccTTL, fcTTL time.Duration) time.Duration {
	ttl := time.Duration(-1)
	for _, c := range []time.Duration{bundleTTL, ccTTL, fcTTL} {
		if c >= 0 && (ttl < 0 || c < ttl) {
			ttl = c
		}
	}
	if ttl < 0 {
		return floor
	}
	return ttl
}

package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/suggestkit/weather-backend/internal/cache/cachekey"
	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
	"github.com/suggestkit/weather-backend/internal/core/observability"
)

// Processor validates one endpoint's response shape. Returning ok=false is a
// soft "no data": the provider changed its shape or localized a field name,
// which is logged but never raised.
type Processor func(body []byte) (value interface{}, ok bool)

// Fetcher performs provider GETs behind a circuit breaker and writes
// processed values back to the cache with a reconciled TTL.
type Fetcher struct {
	client  *http.Client
	baseURL *url.URL
	apiKey  string
	cache   *redisstore.Client
	breaker *gobreaker.CircuitBreaker
	log     *slog.Logger
	now     func() time.Time // for tests
}

func NewFetcher(client *http.Client, baseURL, apiKey string, cache *redisstore.Client, log *slog.Logger) (*Fetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse provider base url: %w", err)
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "weather-provider",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return &Fetcher{
		client:  client,
		baseURL: u,
		apiKey:  apiKey,
		cache:   cache,
		breaker: cb,
		log:     log,
		now:     time.Now,
	}, nil
}

// Request issues one GET against the provider. On a valid response the
// processed value is stored under the derived cache key with
// ttl = max(ttlFloor, time until the response's Expires header); the header
// being unparsable is an error, not a silent fallback. A cache-write failure
// propagates: the fetch succeeded but the next reader will miss, and the
// caller has to know that.
func (f *Fetcher) Request(ctx context.Context, path string, params url.Values, process Processor, ttlFloor time.Duration, shouldCache bool) (interface{}, time.Duration, error) {
	// path is an escaped path fragment; JoinPath keeps it that way
	u := *f.baseURL.JoinPath(path)
	q := url.Values{}
	for name, vals := range params {
		q[name] = vals
	}
	q.Set("apikey", f.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := f.now()
	res, err := f.breaker.Execute(func() (interface{}, error) {
		resp, doErr := f.client.Do(req)
		if doErr != nil {
			return nil, &UpstreamError{Endpoint: path, Err: doErr}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<10))
			return nil, &UpstreamError{Endpoint: path, Status: resp.StatusCode}
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &UpstreamError{Endpoint: path, Err: readErr}
		}
		return &upstreamResponse{body: body, expires: resp.Header.Get("Expires")}, nil
	})
	observability.ObserveUpstream(path, err, time.Since(start).Seconds())
	if err != nil {
		if _, ok := err.(*UpstreamError); !ok {
			// breaker-open and similar gobreaker states
			err = &UpstreamError{Endpoint: path, Err: err}
		}
		return nil, 0, err
	}
	resp := res.(*upstreamResponse)

	value, ok := process(resp.body)
	if !ok {
		f.log.Warn("unexpected provider response shape", "endpoint", path)
		return nil, 0, nil
	}
	if value == nil {
		// well-formed response with nothing in it
		return nil, 0, nil
	}

	if !shouldCache {
		return value, 0, nil
	}

	ttl, err := f.reconcileTTL(resp.expires, ttlFloor)
	if err != nil {
		return nil, 0, err
	}

	blob, err := json.Marshal(value)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal %s value: %w", path, err)
	}
	key := cachekey.Key(path, params)
	if err := f.cache.Set(ctx, key, blob, ttl); err != nil {
		return nil, 0, err
	}
	return value, ttl, nil
}

type upstreamResponse struct {
	body    []byte
	expires string
}

// reconcileTTL enforces the floor: an expiry sooner than the floor (or in the
// past) still yields the floor.
func (f *Fetcher) reconcileTTL(expires string, floor time.Duration) (time.Duration, error) {
	t, err := http.ParseTime(expires)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableExpiry, expires)
	}
	ttl := t.Sub(f.now())
	if ttl < floor {
		return floor, nil
	}
	return ttl, nil
}

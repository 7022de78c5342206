package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/suggestkit/weather-backend/internal/cache/cachekey"
	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
)

const currentConditionsBody = `[{
	"WeatherText": "Sunny",
	"WeatherIcon": 1,
	"Temperature": {
		"Metric":   {"Value": 20, "Unit": "C"},
		"Imperial": {"Value": 68, "Unit": "F"}
	},
	"Link": "https://provider.example/current/347629"
}]`

func newCache(t *testing.T) (*redisstore.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := redisstore.New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli, mr
}

func newTestFetcher(t *testing.T, upstream *httptest.Server, cache *redisstore.Client, now time.Time) *Fetcher {
	t.Helper()
	f, err := NewFetcher(upstream.Client(), upstream.URL, "secret", cache, testLogger())
	require.NoError(t, err)
	f.now = func() time.Time { return now }
	return f
}

func TestRequest_TTLFloorWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret", r.URL.Query().Get("apikey"))
		w.Header().Set("Expires", now.Add(time.Minute).Format(http.TimeFormat))
		_, _ = w.Write([]byte(currentConditionsBody))
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	f := newTestFetcher(t, srv, cache, now)

	path := "currentconditions/v1/347629.json"
	v, ttl, err := f.Request(context.Background(), path, dataParams("en-US"),
		processCurrentConditions, 5*time.Minute, true)
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, ttl)

	cc, ok := v.(*CurrentConditions)
	require.True(t, ok)
	require.Equal(t, "Sunny", cc.Summary)

	key := cachekey.Key(path, dataParams("en-US"))
	require.True(t, mr.Exists(key))
	require.Equal(t, 5*time.Minute, mr.TTL(key))
}

func TestRequest_HeaderTTLWinsWhenLater(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Expires", now.Add(30*time.Minute).Format(http.TimeFormat))
		_, _ = w.Write([]byte(currentConditionsBody))
	}))
	defer srv.Close()
	cache, _ := newCache(t)
	f := newTestFetcher(t, srv, cache, now)

	_, ttl, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, true)
	require.NoError(t, err)
	require.Equal(t, 30*time.Minute, ttl)
}

func TestRequest_UnparsableExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Expires", "not a date")
		_, _ = w.Write([]byte(currentConditionsBody))
	}))
	defer srv.Close()
	cache, _ := newCache(t)
	f := newTestFetcher(t, srv, cache, time.Now())

	_, _, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, true)
	require.ErrorIs(t, err, ErrUnparsableExpiry)
}

func TestRequest_ShapeMismatchIsSoftNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Unexpected":"shape"}`))
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	f := newTestFetcher(t, srv, cache, time.Now())

	v, ttl, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, true)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Zero(t, ttl)
	require.Empty(t, mr.Keys())
}

func TestRequest_EmptyResultNotCached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	f := newTestFetcher(t, srv, cache, time.Now())

	v, _, err := f.Request(context.Background(), "locations/v1/cities/US/CA/search.json",
		citySearchParams("Atlantis", "en-US"), processLocationSearch, time.Hour, true)
	require.NoError(t, err)
	require.Nil(t, v)
	require.Empty(t, mr.Keys())
}

func TestRequest_Non2xxIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	cache, _ := newCache(t)
	f := newTestFetcher(t, srv, cache, time.Now())

	_, _, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, true)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusServiceUnavailable, ue.Status)
}

func TestRequest_CacheWriteFailurePropagates(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Expires", now.Add(time.Hour).Format(http.TimeFormat))
		_, _ = w.Write([]byte(currentConditionsBody))
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	f := newTestFetcher(t, srv, cache, now)
	mr.Close()

	_, _, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, true)
	var ae *redisstore.AdapterError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, redisstore.KindWrite, ae.Kind)
}

func TestRequest_ShouldCacheFalseSkipsStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// no Expires header at all; must not matter when caching is off
		_, _ = w.Write([]byte(currentConditionsBody))
	}))
	defer srv.Close()
	cache, mr := newCache(t)
	f := newTestFetcher(t, srv, cache, time.Now())

	v, ttl, err := f.Request(context.Background(), "currentconditions/v1/347629.json",
		dataParams("en-US"), processCurrentConditions, 5*time.Minute, false)
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Zero(t, ttl)
	require.Empty(t, mr.Keys())
}

// Package bundle implements the scripted multi-key cache reads that fetch a
// weather report's constituents at a consistent instant.
package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
)

// NoTTL marks a bundle whose TTL could not be reconciled server-side: at
// least one of the current-conditions / forecast pair was absent.
const NoTTL = time.Duration(-1)

const (
	scriptByLocationKey = "bundle_by_location_key"
	scriptByGeolocation = "bundle_by_geolocation"
)

// byLocationKeySrc reads the three data keys and reconciles their TTL in one
// round trip. The TTL is only meaningful when both current conditions and
// forecast are present; otherwise a false sentinel is returned.
const byLocationKeySrc = `
local cc = redis.call('GET', KEYS[1])
local fc = redis.call('GET', KEYS[2])
local hr = redis.call('GET', KEYS[3])
local ttl = false
if cc and fc then
  local t1 = redis.call('TTL', KEYS[1])
  local t2 = redis.call('TTL', KEYS[2])
  if t1 >= 0 and t2 >= 0 then
    ttl = math.min(t1, t2)
  end
end
return {cc, fc, hr, ttl}
`

// byGeolocationSrc resolves the cached location first and short-circuits on a
// miss. On a hit the provider location key found inside the blob is
// substituted into the dependent key templates and the same bundled read runs.
const byGeolocationSrc = `
local loc = redis.call('GET', KEYS[1])
if not loc then
  return {false, false, false, false, false}
end
local ok, doc = pcall(cjson.decode, loc)
if not ok or type(doc) ~= 'table' or not doc['key'] then
  return {false, false, false, false, false}
end
local cc = redis.call('GET', string.format(ARGV[1], doc['key']))
local fc = redis.call('GET', string.format(ARGV[2], doc['key']))
local hr = redis.call('GET', string.format(ARGV[3], doc['key']))
local ttl = false
if cc and fc then
  local t1 = redis.call('TTL', string.format(ARGV[1], doc['key']))
  local t2 = redis.call('TTL', string.format(ARGV[2], doc['key']))
  if t1 >= 0 and t2 >= 0 then
    ttl = math.min(t1, t2)
  end
end
return {loc, cc, fc, hr, ttl}
`

// Bundle is the fixed-shape result of one scripted read. Absent constituents
// are nil slices; TTL is NoTTL unless the script reconciled one.
type Bundle struct {
	Location []byte
	Current  []byte
	Forecast []byte
	Hourly   []byte
	TTL      time.Duration
}

// KeyTemplates are printf-style templates with a single %s placeholder for
// the provider location key.
type KeyTemplates struct {
	Current  string
	Forecast string
	Hourly   string
}

type Reader struct {
	cli *redisstore.Client
}

func NewReader(cli *redisstore.Client) *Reader {
	cli.RegisterScript(scriptByLocationKey, byLocationKeySrc)
	cli.RegisterScript(scriptByGeolocation, byGeolocationSrc)
	return &Reader{cli: cli}
}

// ByLocationKey reads the current-conditions, forecast and hourly blobs for an
// already-resolved provider location.
func (r *Reader) ByLocationKey(ctx context.Context, currentKey, forecastKey, hourlyKey string) (Bundle, error) {
	res, err := r.cli.RunScript(ctx, scriptByLocationKey, []string{currentKey, forecastKey, hourlyKey})
	if err != nil {
		return Bundle{}, err
	}
	arr, err := replyArray(res, 4)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Current:  replyBlob(arr[0]),
		Forecast: replyBlob(arr[1]),
		Hourly:   replyBlob(arr[2]),
		TTL:      replyTTL(arr[3]),
	}, nil
}

// ByGeolocation reads the cached location under locationKey and, when
// present, the three dependent blobs derived from the templates.
func (r *Reader) ByGeolocation(ctx context.Context, locationKey string, tmpl KeyTemplates) (Bundle, error) {
	res, err := r.cli.RunScript(ctx, scriptByGeolocation,
		[]string{locationKey}, tmpl.Current, tmpl.Forecast, tmpl.Hourly)
	if err != nil {
		return Bundle{}, err
	}
	arr, err := replyArray(res, 5)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Location: replyBlob(arr[0]),
		Current:  replyBlob(arr[1]),
		Forecast: replyBlob(arr[2]),
		Hourly:   replyBlob(arr[3]),
		TTL:      replyTTL(arr[4]),
	}, nil
}

func replyArray(res interface{}, want int) ([]interface{}, error) {
	arr, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("bundle script reply is %T, want array", res)
	}
	// The scripts use false placeholders for absent slots; pad in case a
	// client decoder drops trailing nils.
	for len(arr) < want {
		arr = append(arr, nil)
	}
	return arr[:want], nil
}

func replyBlob(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		return nil
	}
}

func replyTTL(v interface{}) time.Duration {
	if n, ok := v.(int64); ok && n >= 0 {
		return time.Duration(n) * time.Second
	}
	return NoTTL
}

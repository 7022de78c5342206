package weather

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingLocationKey means the caller's geolocation could not be resolved
// to a provider location. Terminal; the service layer serves no suggestion.
var ErrMissingLocationKey = errors.New("weather: no resolvable location key")

// ErrUnparsableExpiry reports a provider response whose Expires header could
// not be parsed. There is no silent fallback TTL: an unparsable expiry is a
// contract violation that has to stay visible.
var ErrUnparsableExpiry = errors.New("weather: unparsable expires header")

// Pathfinder terminal states. Both collapse to ErrMissingLocationKey at the
// backend boundary but stay distinct for telemetry.
var (
	errCitySkipped  = errors.New("weather: city in skip list")
	errCityNotFound = errors.New("weather: city not found")
)

// UpstreamError is a transport-level failure of one provider call.
type UpstreamError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// AggregateError wraps every error raised during the concurrent fetch phase.
// The fetches are joined positionally, so all failures are known by the time
// this is built; none is dropped in favor of the first.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d fetch error(s): %s", len(e.Errs), strings.Join(msgs, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errs }

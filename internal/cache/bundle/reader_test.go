package bundle

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/suggestkit/weather-backend/internal/cache/redisstore"
)

func newMini(t *testing.T) (*miniredis.Miniredis, *Reader) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := redisstore.New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return mr, NewReader(rc)
}

func seed(t *testing.T, mr *miniredis.Miniredis, key, val string, ttl time.Duration) {
	t.Helper()
	if err := mr.Set(key, val); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
	mr.SetTTL(key, ttl)
}

func TestByLocationKey_AllPresent(t *testing.T) {
	mr, r := newMini(t)

	seed(t, mr, "cc", `{"temp":12}`, 300*time.Second)
	seed(t, mr, "fc", `{"high":20}`, 120*time.Second)
	seed(t, mr, "hr", `[{"temp":11}]`, 60*time.Second)

	b, err := r.ByLocationKey(context.Background(), "cc", "fc", "hr")
	if err != nil {
		t.Fatalf("ByLocationKey: %v", err)
	}
	if string(b.Current) != `{"temp":12}` || string(b.Forecast) != `{"high":20}` || string(b.Hourly) != `[{"temp":11}]` {
		t.Fatalf("unexpected blobs: %+v", b)
	}
	// server-side min(ttl(cc), ttl(fc)); hourly does not participate
	if b.TTL != 120*time.Second {
		t.Fatalf("TTL=%v want 120s", b.TTL)
	}
}

func TestByLocationKey_PartialPairYieldsNoTTL(t *testing.T) {
	mr, r := newMini(t)

	seed(t, mr, "cc", `{"temp":12}`, 300*time.Second)

	b, err := r.ByLocationKey(context.Background(), "cc", "fc", "hr")
	if err != nil {
		t.Fatalf("ByLocationKey: %v", err)
	}
	if b.Current == nil || b.Forecast != nil || b.Hourly != nil {
		t.Fatalf("unexpected blobs: %+v", b)
	}
	if b.TTL != NoTTL {
		t.Fatalf("TTL=%v want NoTTL", b.TTL)
	}
}

func TestByGeolocation_MissShortCircuits(t *testing.T) {
	_, r := newMini(t)

	b, err := r.ByGeolocation(context.Background(), "loc:absent", KeyTemplates{
		Current:  "cc:%s",
		Forecast: "fc:%s",
		Hourly:   "hr:%s",
	})
	if err != nil {
		t.Fatalf("ByGeolocation: %v", err)
	}
	if b.Location != nil || b.Current != nil || b.Forecast != nil || b.Hourly != nil {
		t.Fatalf("expected empty bundle, got %+v", b)
	}
	if b.TTL != NoTTL {
		t.Fatalf("TTL=%v want NoTTL", b.TTL)
	}
}

func TestByGeolocation_SubstitutesProviderKey(t *testing.T) {
	mr, r := newMini(t)

	seed(t, mr, "loc:sf", `{"key":"39376","localized_name":"San Francisco"}`, 600*time.Second)
	seed(t, mr, "cc:39376", `{"temp":12}`, 240*time.Second)
	seed(t, mr, "fc:39376", `{"high":20}`, 480*time.Second)

	b, err := r.ByGeolocation(context.Background(), "loc:sf", KeyTemplates{
		Current:  "cc:%s",
		Forecast: "fc:%s",
		Hourly:   "hr:%s",
	})
	if err != nil {
		t.Fatalf("ByGeolocation: %v", err)
	}
	if string(b.Location) != `{"key":"39376","localized_name":"San Francisco"}` {
		t.Fatalf("location blob: %s", b.Location)
	}
	if string(b.Current) != `{"temp":12}` || string(b.Forecast) != `{"high":20}` {
		t.Fatalf("unexpected blobs: %+v", b)
	}
	if b.Hourly != nil {
		t.Fatalf("hourly should be absent")
	}
	if b.TTL != 240*time.Second {
		t.Fatalf("TTL=%v want 240s", b.TTL)
	}
}

func TestByLocationKey_TransportErrorPropagates(t *testing.T) {
	mr, r := newMini(t)
	mr.Close()

	_, err := r.ByLocationKey(context.Background(), "cc", "fc", "hr")
	if err == nil {
		t.Fatalf("expected error after server close")
	}
	var ae *redisstore.AdapterError
	if !errors.As(err, &ae) || ae.Kind != redisstore.KindRead {
		t.Fatalf("err=%v want read AdapterError", err)
	}
}

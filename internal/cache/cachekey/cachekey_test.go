package cachekey

import (
	"net/url"
	"strings"
	"testing"
)

func TestKey_IndependentOfParamOrder(t *testing.T) {
	a := url.Values{}
	a.Set("q", "san francisco")
	a.Set("country", "US")
	a.Set("language", "en-US")

	b := url.Values{}
	b.Set("language", "en-US")
	b.Set("country", "US")
	b.Set("q", "san francisco")

	ka := Key("locations/search", a)
	kb := Key("locations/search", b)
	if ka != kb {
		t.Fatalf("keys differ for equal param sets: %q vs %q", ka, kb)
	}
}

func TestKey_SecretExcluded(t *testing.T) {
	with := url.Values{}
	with.Set("q", "oslo")
	with.Set("country", "NO")
	with.Set("apikey", "s3cret")

	without := url.Values{}
	without.Set("q", "oslo")
	without.Set("country", "NO")

	if Key("locations/search", with) != Key("locations/search", without) {
		t.Fatalf("apikey leaked into key material")
	}
	if strings.Contains(Key("locations/search", with), "s3cret") {
		t.Fatalf("secret value appears verbatim in key")
	}
}

func TestKey_DifferentParamsDiffer(t *testing.T) {
	a := url.Values{}
	a.Set("q", "paris")
	a.Set("country", "FR")

	b := url.Values{}
	b.Set("q", "paris")
	b.Set("country", "US")

	if Key("locations/search", a) == Key("locations/search", b) {
		t.Fatalf("distinct param sets derived the same key")
	}
}

func TestKey_ShortFormForOneOrFewerParams(t *testing.T) {
	want := "weather:" + Version + ":currentconditions/12345"

	if got := Key("currentconditions/12345", nil); got != want {
		t.Fatalf("no params: got %q want %q", got, want)
	}

	one := url.Values{}
	one.Set("language", "en-US")
	if got := Key("currentconditions/12345", one); got != want {
		t.Fatalf("one param: got %q want %q", got, want)
	}

	secretOnly := url.Values{}
	secretOnly.Set("apikey", "s3cret")
	secretOnly.Set("language", "en-US")
	if got := Key("currentconditions/12345", secretOnly); got != want {
		t.Fatalf("secret+one param: got %q want %q", got, want)
	}
}

func TestKey_VersionEmbedded(t *testing.T) {
	k := Key("forecasts/daily/12345", nil)
	if !strings.Contains(k, ":"+Version+":") {
		t.Fatalf("key %q does not embed schema version", k)
	}
}

package weather

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suggestkit/weather-backend/internal/cache/bundle"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// probeRecorder resolves only the configured (city, region) pair and records
// every candidate it was asked about.
type probeRecorder struct {
	hitCity   string
	hitRegion string
	calls     []candidate
}

func (p *probeRecorder) probe(_ context.Context, city, region string) (*bundle.Bundle, error) {
	p.calls = append(p.calls, candidate{city: city, region: region})
	if city == p.hitCity && region == p.hitRegion {
		return &bundle.Bundle{Location: []byte(`{"key":"1"}`), TTL: bundle.NoTTL}, nil
	}
	return nil, nil
}

func TestCityVariants(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"Boston", []string{"Boston"}},
		{"nyc", []string{"New York"}},
		{"Mexico City", []string{"Ciudad de México", "Ciudad de Mexico"}},
		{"Mérida City", []string{"Mérida City", "Merida City", "Merida"}},
		{"Salt Lake City", []string{"Salt Lake City"}},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, cityVariants(tc.in), "variants of %q", tc.in)
	}
}

func TestFind_MostSpecificRegionOnly(t *testing.T) {
	pr := &probeRecorder{hitCity: "San Francisco", hitRegion: "CA"}
	pf := NewPathfinder(NewRegionMemory(0), testLogger())

	loc := Location{Country: "US", Regions: []string{"CA", "Northern California"}, City: "San Francisco"}
	res, err := pf.Find(context.Background(), loc, pr.probe)
	require.NoError(t, err)
	require.Equal(t, "CA", res.Region)
	require.Equal(t, []candidate{{city: "San Francisco", region: "CA"}}, pr.calls)
}

func TestFind_LeastSpecificRegionOnly(t *testing.T) {
	pr := &probeRecorder{hitCity: "London", hitRegion: "England"}
	pf := NewPathfinder(NewRegionMemory(0), testLogger())

	loc := Location{Country: "GB", Regions: []string{"Greater London", "England"}, City: "London"}
	res, err := pf.Find(context.Background(), loc, pr.probe)
	require.NoError(t, err)
	require.Equal(t, "England", res.Region)
	require.Len(t, pr.calls, 1)
}

func TestFind_SearchAllLearnsRegion(t *testing.T) {
	mem := NewRegionMemory(0)
	pf := NewPathfinder(mem, testLogger())
	loc := Location{Country: "SE", Regions: []string{"AB", "Uppland"}, City: "Stockholm"}

	// resolves only with no region, the last candidate in the chain
	pr := &probeRecorder{hitCity: "Stockholm", hitRegion: ""}
	res, err := pf.Find(context.Background(), loc, pr.probe)
	require.NoError(t, err)
	require.Equal(t, "", res.Region)
	require.Len(t, pr.calls, 3)

	learned, ok := mem.SuccessfulRegion("SE", "Stockholm")
	require.True(t, ok)
	require.Equal(t, "", learned)

	// a later search for the same city tries only the learned region
	pr2 := &probeRecorder{hitCity: "Stockholm", hitRegion: ""}
	_, err = pf.Find(context.Background(), loc, pr2.probe)
	require.NoError(t, err)
	require.Equal(t, []candidate{{city: "Stockholm", region: ""}}, pr2.calls)
}

func TestFind_ExhaustionSeedsSkipList(t *testing.T) {
	mem := NewRegionMemory(0)
	pf := NewPathfinder(mem, testLogger())
	loc := Location{Country: "US", Regions: []string{"ZZ"}, City: "Nowhereville"}

	pr := &probeRecorder{} // never resolves
	_, err := pf.Find(context.Background(), loc, pr.probe)
	require.ErrorIs(t, err, errCityNotFound)
	require.NotEmpty(t, pr.calls)
	require.Equal(t, 1, mem.SkipCount("US", "ZZ", "Nowhereville"))

	// the identical search now terminates before any probe
	pr2 := &probeRecorder{}
	_, err = pf.Find(context.Background(), loc, pr2.probe)
	require.ErrorIs(t, err, errCitySkipped)
	require.Empty(t, pr2.calls)
	require.Equal(t, 2, mem.SkipCount("US", "ZZ", "Nowhereville"))
}

func TestFind_ProbeErrorAbortsSearch(t *testing.T) {
	pf := NewPathfinder(NewRegionMemory(0), testLogger())
	loc := Location{Country: "SE", Regions: []string{"AB", "Uppland"}, City: "Stockholm"}

	calls := 0
	probe := func(context.Context, string, string) (*bundle.Bundle, error) {
		calls++
		return nil, context.DeadlineExceeded
	}
	_, err := pf.Find(context.Background(), loc, probe)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, calls)
}

func TestRegionMemory_ResetAndForget(t *testing.T) {
	mem := NewRegionMemory(0)
	mem.RecordSuccessfulRegion("SE", "Stockholm", "AB")
	mem.IncrementSkip("US", "ZZ", "Nowhereville")

	mem.ForgetRegion("SE", "Stockholm")
	_, ok := mem.SuccessfulRegion("SE", "Stockholm")
	require.False(t, ok)

	mem.ResetSkip("US", "ZZ", "Nowhereville")
	require.Zero(t, mem.SkipCount("US", "ZZ", "Nowhereville"))
}

package weather

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/suggestkit/weather-backend/internal/cache/bundle"
	"github.com/suggestkit/weather-backend/internal/core/observability"
)

// cityAliases corrects caller spellings the provider's place database will
// never match. Keys are lowercase.
var cityAliases = map[string]string{
	"nyc":              "New York",
	"new york city":    "New York",
	"mexico city":      "Ciudad de México",
	"saint petersburg": "St. Petersburg",
	"ho chi minh":      "Ho Chi Minh City",
}

var localitySuffix = regexp.MustCompile(`(?i)\s+(city|municipality|town)$`)

// Probe resolves one (city, region) candidate. A nil bundle pointer means the
// candidate did not resolve; an error aborts the search.
type Probe func(ctx context.Context, city, region string) (*bundle.Bundle, error)

// SearchResult is a successful resolution: the bundle the probe returned and
// the candidate that produced it.
type SearchResult struct {
	Bundle *bundle.Bundle
	City   string
	Region string
}

// Pathfinder runs the backtracking search over city-name variants and region
// candidates. Each probe blocks on at least one network round trip, so the
// search is sequential by construction; learned state makes it converge to a
// single probe for any (country, city) seen before.
type Pathfinder struct {
	memory RegionMemory
	log    *slog.Logger
}

func NewPathfinder(memory RegionMemory, log *slog.Logger) *Pathfinder {
	return &Pathfinder{memory: memory, log: log}
}

type candidate struct {
	city   string
	region string
}

// Find walks the candidate space in order and stops on the first success,
// the first skip-list hit, or exhaustion. On success for a country without a
// deterministic region rule the winning region is memorized.
func (p *Pathfinder) Find(ctx context.Context, loc Location, probe Probe) (*SearchResult, error) {
	country := strings.ToUpper(loc.Country)
	policy := policyFor(country)
	cands := p.candidates(country, policy, loc)

	probes := 0
	for _, c := range cands {
		if p.memory.SkipCount(country, c.region, c.city) > 0 {
			n := p.memory.IncrementSkip(country, c.region, c.city)
			observability.ObservePathfinder("skipped", probes)
			p.log.Debug("city search skipped",
				"country", country, "region", c.region, "city", c.city, "attempts", n)
			return nil, errCitySkipped
		}

		probes++
		b, err := probe(ctx, c.city, c.region)
		if err != nil {
			return nil, err
		}
		if b != nil {
			if policy == RegionSearchAll {
				p.memory.RecordSuccessfulRegion(country, c.city, c.region)
			}
			observability.ObservePathfinder("found", probes)
			return &SearchResult{Bundle: b, City: c.city, Region: c.region}, nil
		}
	}

	// Exhausted. Seed the skip list with the leading candidate so the next
	// identical request terminates before its first probe.
	if len(cands) > 0 {
		p.memory.IncrementSkip(country, cands[0].region, cands[0].city)
	}
	observability.ObservePathfinder("not_found", probes)
	return nil, errCityNotFound
}

func (p *Pathfinder) candidates(country string, policy RegionPolicy, loc Location) []candidate {
	var out []candidate
	for _, city := range cityVariants(loc.City) {
		for _, region := range p.regionCandidates(country, policy, city, loc.Regions) {
			out = append(out, candidate{city: city, region: region})
		}
	}
	return out
}

// cityVariants yields the input city (alias-corrected), then the same with
// diacritics stripped, then the same with a trailing locality-type suffix
// removed. Generation stops as soon as a step reproduces an earlier variant.
func cityVariants(city string) []string {
	first := city
	if corrected, ok := cityAliases[strings.ToLower(strings.TrimSpace(city))]; ok {
		first = corrected
	}

	variants := []string{first}

	stripped := stripDiacritics(first)
	if stripped == first {
		return variants
	}
	variants = append(variants, stripped)

	trimmed := strings.TrimSpace(localitySuffix.ReplaceAllString(stripped, ""))
	if trimmed == first || trimmed == stripped || trimmed == "" {
		return variants
	}
	return append(variants, trimmed)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// regionCandidates applies the per-country policy: a learned mapping wins for
// search-all countries, deterministic countries probe exactly one region, and
// everything else walks the full list followed by "no region".
func (p *Pathfinder) regionCandidates(country string, policy RegionPolicy, city string, regions []string) []string {
	switch policy {
	case RegionMostSpecific:
		if len(regions) == 0 {
			return []string{""}
		}
		return regions[:1]
	case RegionLeastSpecific:
		if len(regions) == 0 {
			return []string{""}
		}
		return regions[len(regions)-1:]
	default:
		if learned, ok := p.memory.SuccessfulRegion(country, city); ok {
			return []string{learned}
		}
		out := make([]string, 0, len(regions)+1)
		out = append(out, regions...)
		return append(out, "")
	}
}

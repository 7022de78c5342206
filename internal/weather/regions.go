package weather

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RegionPolicy says which admin-region granularity the provider's place
// database treats as authoritative for a country.
type RegionPolicy uint8

const (
	// RegionSearchAll tries every listed region in order, then no region.
	RegionSearchAll RegionPolicy = iota
	// RegionMostSpecific trusts only the first listed region.
	RegionMostSpecific
	// RegionLeastSpecific trusts only the last listed region.
	RegionLeastSpecific
)

// regionPolicies maps country code to the deterministic rule, if any.
// Countries absent from the table fall back to RegionSearchAll.
var regionPolicies = map[string]RegionPolicy{
	"US": RegionMostSpecific,
	"CA": RegionMostSpecific,
	"AU": RegionMostSpecific,
	"GB": RegionLeastSpecific,
	"IE": RegionLeastSpecific,
	"DE": RegionLeastSpecific,
	"FR": RegionLeastSpecific,
	"ES": RegionLeastSpecific,
	"IT": RegionLeastSpecific,
}

func policyFor(country string) RegionPolicy {
	return regionPolicies[strings.ToUpper(country)]
}

// RegionMemory is the process-wide learned state behind the location search:
// the successful-region memo and the skip (negative) cache. Implementations
// must be safe for concurrent use; lost updates are tolerated, they only cost
// one missed optimization.
type RegionMemory interface {
	// SuccessfulRegion returns the learned region for (country, city). An
	// empty region with ok=true means "resolves with no region".
	SuccessfulRegion(country, city string) (region string, ok bool)
	RecordSuccessfulRegion(country, city, region string)

	SkipCount(country, region, city string) int
	// IncrementSkip bumps and returns the attempt counter.
	IncrementSkip(country, region, city string) int

	// ResetSkip and ForgetRegion drop learned state for a place, typically
	// after the provider's database changed underneath us.
	ResetSkip(country, region, city string)
	ForgetRegion(country, city string)
}

type cityKey struct {
	country string
	city    string
}

type skipKey struct {
	country string
	region  string
	city    string
}

type lruRegionMemory struct {
	regions *lru.Cache[cityKey, string]
	skips   *lru.Cache[skipKey, int]
}

// NewRegionMemory builds a bounded RegionMemory. The bound only matters on
// pathological traffic; entries are otherwise append-mostly and never pruned
// by the backend itself.
func NewRegionMemory(size int) RegionMemory {
	if size <= 0 {
		size = 16384
	}
	regions, _ := lru.New[cityKey, string](size)
	skips, _ := lru.New[skipKey, int](size)
	return &lruRegionMemory{regions: regions, skips: skips}
}

func (m *lruRegionMemory) SuccessfulRegion(country, city string) (string, bool) {
	return m.regions.Get(cityKey{country, city})
}

func (m *lruRegionMemory) RecordSuccessfulRegion(country, city, region string) {
	m.regions.Add(cityKey{country, city}, region)
}

func (m *lruRegionMemory) SkipCount(country, region, city string) int {
	n, _ := m.skips.Get(skipKey{country, region, city})
	return n
}

func (m *lruRegionMemory) IncrementSkip(country, region, city string) int {
	k := skipKey{country, region, city}
	n, _ := m.skips.Get(k)
	n++
	m.skips.Add(k, n)
	return n
}

func (m *lruRegionMemory) ResetSkip(country, region, city string) {
	m.skips.Remove(skipKey{country, region, city})
}

func (m *lruRegionMemory) ForgetRegion(country, city string) {
	m.regions.Remove(cityKey{country, city})
}

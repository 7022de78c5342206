// Package cachekey derives the versioned Redis keys for weather entities.
package cachekey

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	backend = "weather"

	// Version is baked into every key so a schema change invalidates old
	// entries without an explicit migration.
	Version = "v1"

	// secretParam never participates in key material.
	secretParam = "apikey"
)

// Key derives a stable cache key for a provider request. The derivation is
// independent of parameter ordering: params are sorted by name before
// digesting. With one or fewer non-secret params the path alone is
// discriminating enough and the digest is omitted.
func Key(basePath string, params url.Values) string {
	names := make([]string, 0, len(params))
	remaining := 0
	for name, vals := range params {
		if name == secretParam {
			continue
		}
		names = append(names, name)
		remaining += len(vals)
	}

	prefix := backend + ":" + Version + ":" + basePath
	if remaining <= 1 {
		return prefix
	}

	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		for _, val := range params[name] {
			b.WriteString(name)
			b.WriteString("||")
			b.WriteString(val)
		}
	}
	return fmt.Sprintf("%s:%016x", prefix, xxhash.Sum64String(b.String()))
}

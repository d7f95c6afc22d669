// Package cache provides the result cache for parsed listing records,
// keyed by a stable fingerprint of the listing text. Implementations
// include Redis and in-memory (for testing).
//
// Cache failures never fail an analysis: callers treat read errors as a
// miss and log-and-swallow write errors.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Cache is a byte-valued key-value store with per-entry TTL.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Clear removes all analysis entries and reports how many were removed.
	Clear(ctx context.Context) (int64, error)

	// Stats reports on the currently cached analysis entries.
	Stats(ctx context.Context) (Stats, error)
}

// Stats describes the analysis cache contents.
type Stats struct {
	Entries int64 `json:"entries"`
}

// keyPrefix namespaces analysis entries so Clear can target them without
// touching unrelated keys in a shared Redis.
const keyPrefix = "analysis:"

// Key derives the cache key for a listing description. The key is a pure
// text-identity fingerprint (md5 of the exact trimmed text), not a
// semantic one: two descriptions differing by a single character cache
// separately on purpose.
func Key(description string) string {
	sum := md5.Sum([]byte(description))
	return keyPrefix + hex.EncodeToString(sum[:])
}

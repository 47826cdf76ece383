// Package cache provides the key/value store sourcing runs persist into.
//
// The core treats the cache as a black box: opaque byte payloads stored
// under string keys with a time-to-live. Implementations:
//
//   - [FileCache]: zstd-compressed files on local disk
//   - [RedisCache]: a shared Redis instance
//   - [NullCache]: caching disabled
//
// Keys are produced by a [Keyer]. Every key is scoped by a hash of the
// run configuration, so changing the configuration invalidates all entries
// at once without a monolithic run-level cache key.
package cache

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is how long endpoint payloads and content items stay cached
// unless the run configures otherwise.
const DefaultTTL = 24 * time.Hour

// Cache stores opaque payloads by key.
type Cache interface {
	// Get returns the payload for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}

// Keyer generates cache keys. scope is normally the configuration hash.
type Keyer interface {
	// EndpointKey identifies the expanded data of one configured endpoint.
	EndpointKey(scope, nodeName, endpoint string) string
	// ContentKey identifies one content item fetched by its content link id.
	ContentKey(scope string, id int) string
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// EndpointKey hashes the endpoint parameters under the "endpoint" prefix.
func (DefaultKeyer) EndpointKey(scope, nodeName, endpoint string) string {
	return hashKey("endpoint", scope, nodeName, endpoint)
}

// ContentKey returns "content:<scope>:<id>".
func (DefaultKeyer) ContentKey(scope string, id int) string {
	return fmt.Sprintf("content:%s:%d", scope, id)
}

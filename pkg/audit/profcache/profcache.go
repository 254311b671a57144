// Package profcache persists capability profiles between audit runs.
// Profiling a target costs seconds; its result is stable for hours, so
// profiles are cached with a TTL (24h by default) keyed by host.
//
// The cache is an explicit service object: callers construct it with a path
// and a clock and pass it into the profiler, so tests can inject a fake
// clock instead of relying on ambient global state.
package profcache

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/jamesainslie/fleetaudit/pkg/audit/types"
)

// DefaultTTL is how long a cached profile stays valid.
const DefaultTTL = 24 * time.Hour

// cachedProfile is the stored representation of a profile.
type cachedProfile struct {
	Profile types.CapabilityProfile
}

// encode serializes the entry using gob.
func (e *cachedProfile) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode deserializes bytes into the entry using gob.
func (e *cachedProfile) decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(e)
}

// Cache provides TTL-validated profile caching on top of a Store.
type Cache struct {
	store *Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the default TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the clock used for age validation. Tests use this to
// expire entries without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open opens or creates a profile cache at the given path.
func Open(path string, opts ...Option) (*Cache, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// Get returns the cached profile for host, or ErrNotFound when the cache
// has no entry or the entry has aged out. Age is checked against the
// injected clock in addition to badger's own key TTL.
func (c *Cache) Get(host string) (*types.CapabilityProfile, error) {
	entry, err := c.store.Get(host)
	if err != nil {
		return nil, err
	}

	age := c.now().Sub(entry.Profile.ProfiledAt)
	if age > c.ttl {
		// Expired by our clock even if badger has not collected it yet.
		_ = c.store.Delete(host)
		return nil, ErrNotFound
	}

	return &entry.Profile, nil
}

// Put stores a profile. Concurrent writers for the same host are
// last-writer-wins; profiles are idempotent recomputations, so any winner
// is acceptable.
func (c *Cache) Put(profile *types.CapabilityProfile) error {
	return c.store.Put(profile.Host, &cachedProfile{Profile: *profile}, c.ttl)
}

// Invalidate removes the cached profile for host, forcing a fresh
// measurement on the next audit.
func (c *Cache) Invalidate(host string) error {
	return c.store.Delete(host)
}

// Clear removes every cached profile.
func (c *Cache) Clear() error {
	return c.store.DeleteAll()
}

// Count returns the number of cached profiles.
func (c *Cache) Count() (int, error) {
	return c.store.Count()
}

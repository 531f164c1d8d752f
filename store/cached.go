package store

import (
	"sync/atomic"

	"github.com/chazu/tagview/tag"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of records Cached keeps by default.
const DefaultCacheSize = 1024

// Cached wraps a store with an LRU of record bytes. Concurrent misses for
// the same hash share one load. Returned slices are shared between callers
// and must not be modified.
type Cached struct {
	inner tag.Store
	cache *lru.Cache[tag.TagHash, []byte]
	group singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	loads  atomic.Uint64
}

// CacheStats counts cache activity.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Loads  uint64
	Len    int
}

// NewCached wraps inner with a cache of size records.
func NewCached(inner tag.Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[tag.TagHash, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cached{inner: inner, cache: c}, nil
}

// Inner returns the wrapped store.
func (c *Cached) Inner() tag.Store { return c.inner }

func (c *Cached) Bytes(h tag.TagHash) ([]byte, error) {
	if b, ok := c.cache.Get(h); ok {
		c.hits.Add(1)
		return b, nil
	}
	c.misses.Add(1)
	v, err, _ := c.group.Do(h.String(), func() (any, error) {
		if b, ok := c.cache.Get(h); ok {
			return b, nil
		}
		c.loads.Add(1)
		b, err := c.inner.Bytes(h)
		if err != nil {
			return nil, err
		}
		c.cache.Add(h, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cached) Bytes64(h uint64) ([]byte, error) {
	h32, ok := c.inner.ResolveHash64(h)
	if !ok {
		return nil, unresolved(h)
	}
	return c.Bytes(h32)
}

func (c *Cached) ResolveHash64(h uint64) (tag.TagHash, bool) {
	return c.inner.ResolveHash64(h)
}

func (c *Cached) EntryMeta(h tag.TagHash) (tag.EntryMeta, bool) {
	return c.inner.EntryMeta(h)
}

// Entries passes through to the wrapped store when it can list itself.
func (c *Cached) Entries() []tag.EntryMeta {
	if e, ok := c.inner.(tag.Enumerable); ok {
		return e.Entries()
	}
	return nil
}

func (c *Cached) Hash64Table() []tag.Hash64Entry {
	if e, ok := c.inner.(tag.Enumerable); ok {
		return e.Hash64Table()
	}
	return nil
}

// Stats returns the current counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		Len:    c.cache.Len(),
	}
}

// Purge drops every cached record.
func (c *Cached) Purge() {
	c.cache.Purge()
}

// Close closes the wrapped store.
func (c *Cached) Close() error {
	return Close(c.inner)
}

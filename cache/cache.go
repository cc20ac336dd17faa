package cache

import (
	"time"

	"github.com/karlseguin/ccache/v3"
)

// NoExpiration keeps an entry until it is deleted, cleared or evicted by size.
// ccache stores expiry as unix nanos, so this stays well inside int64.
const NoExpiration = 100 * 365 * 24 * time.Hour

// ICache is a generic interface for a cache implementation.
type ICache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T, opts ...SetOption)
	Delete(key string)
	Clear()
	Len() int
}

type setOptions struct {
	ttl time.Duration
}

// SetOption customizes a single Set call.
type SetOption func(*setOptions)

// WithTTL overrides the default TTL of the cache for one entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
	}
}

type inMemoryCache[T any] struct {
	cache      *ccache.Cache[T]
	defaultTTL time.Duration
}

// NewInMemoryCache creates a new in-memory cache with the specified size and default TTL.
// A non-positive defaultTTL means NoExpiration.
func NewInMemoryCache[T any](size int64, defaultTTL time.Duration) ICache[T] {
	if defaultTTL <= 0 {
		defaultTTL = NoExpiration
	}
	return &inMemoryCache[T]{
		cache:      ccache.New(ccache.Configure[T]().MaxSize(size)),
		defaultTTL: defaultTTL,
	}
}

// Get retrieves an item from the cache by its key.
func (c *inMemoryCache[T]) Get(key string) (T, bool) {
	item := c.cache.Get(key)
	if item == nil || item.Expired() {
		var zero T
		return zero, false
	}
	return item.Value(), true
}

// Set adds an item to the cache with a specified key and value.
func (c *inMemoryCache[T]) Set(key string, value T, opts ...SetOption) {
	o := setOptions{ttl: c.defaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl <= 0 {
		o.ttl = c.defaultTTL
	}
	c.cache.Set(key, value, o.ttl)
}

// Delete removes an item from the cache by its key.
func (c *inMemoryCache[T]) Delete(key string) {
	c.cache.Delete(key)
}

// Clear removes all items from the cache.
func (c *inMemoryCache[T]) Clear() {
	c.cache.Clear()
}

// Len returns the number of items currently in the cache.
func (c *inMemoryCache[T]) Len() int {
	return c.cache.ItemCount()
}

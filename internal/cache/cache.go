// Package cache provides a size bounded, TTL expiring key/value store safe for concurrent use.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache maps string keys to values of type V.
//
// An entry is only returned while less than ttl has elapsed since it was put. When the cache is full, putting a
// new key evicts the least recently used one.
type Cache[V any] struct {
	name string
	ttl  time.Duration
	lru  *expirable.LRU[string, V]

	requests *prometheus.CounterVec
}

type options struct {
	registry prometheus.Registerer
}

// Options represents an optional function to override Cache default values.
type Options func(*options)

// WithRegisterer counts cache hits and misses in the given registry.
func WithRegisterer(reg prometheus.Registerer) Options {
	return func(o *options) {
		o.registry = reg
	}
}

// New creates a cache holding at most size entries, each living ttl.
// name labels the cache metrics and must be unique per registry.
//
// The underlying LRU runs an expiry goroutine for the life of the process: caches are meant to be created once
// at startup, not per request.
func New[V any](name string, size int, ttl time.Duration, args ...Options) *Cache[V] {
	var opts options
	for _, opt := range args {
		opt(&opts)
	}

	c := &Cache[V]{
		name: name,
		ttl:  ttl,
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
	}

	if opts.registry != nil {
		reg := prometheus.WrapRegistererWith(prometheus.Labels{"cache": name}, opts.registry)
		c.requests = promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyda_cache_requests_total",
				Help: "Tracks cache lookups by result.",
			}, []string{"result"},
		)
	}

	return c
}

// Get returns the value stored under key if it has not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if c.requests != nil {
		result := "miss"
		if ok {
			result = "hit"
		}
		c.requests.WithLabelValues(result).Inc()
	}
	return v, ok
}

// Put stores value under key, replacing any previous value and restarting its TTL.
func (c *Cache[V]) Put(key string, value V) {
	c.lru.Add(key, value)
}

// Len returns the number of entries currently held, expired ones included until they are collected.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}

// TTL returns the lifetime of an entry.
func (c *Cache[V]) TTL() time.Duration {
	return c.ttl
}

// Name returns the cache name used in metrics.
func (c *Cache[V]) Name() string {
	return c.name
}

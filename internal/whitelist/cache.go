// Package whitelist answers "is this SMS sender pre-authorized?" through a
// capacity- and TTL-bounded LRU cache in front of the whitelist collection.
package whitelist

import (
	"container/list"
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// Defaults used when the configured values are not positive.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultCapacity      = 1000
	DefaultSharedTimeout = 3 * time.Second
)

// Lookup is the authoritative whitelist check.
type Lookup interface {
	IsWhitelisted(ctx context.Context, identity string) (bool, error)
}

type entry struct {
	identity   string
	authorized bool
	cachedAt   time.Time
}

// Cache is safe for concurrent use. The lock is never held across a Lookup call.
type Cache struct {
	lookup   Lookup
	ttl      time.Duration
	capacity int

	mu    sync.Mutex
	order *list.List // front = most recently used
	items map[string]*list.Element

	group         *singleflight.Group
	sharedTimeout time.Duration
	nowF          func() time.Time

	lookups metric.Int64Counter
}

// Option configures a Cache.
type Option func(*Cache)

// WithSingleflight collapses concurrent cold lookups for the same identity into one call.
// The shared call is detached from the first caller's cancellation and bounded by timeout
// instead (DefaultSharedTimeout when not positive).
func WithSingleflight(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout <= 0 {
			timeout = DefaultSharedTimeout
		}
		c.group = &singleflight.Group{}
		c.sharedTimeout = timeout
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.nowF = now }
}

// NewCache builds a cache of at most capacity entries, each fresh for ttl.
func NewCache(lookup Lookup, ttl time.Duration, capacity int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		lookup:   lookup,
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		nowF:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lookups, _ = otel.Meter("print-relay/whitelist").Int64Counter("whitelist.lookups",
		metric.WithDescription("Whitelist checks by cache result."))
	return c
}

// IsAuthorized reports whether identity is whitelisted. A lookup error yields false and is not cached.
func (c *Cache) IsAuthorized(ctx context.Context, identity string) bool {
	if authorized, ok := c.get(identity); ok {
		c.record(ctx, "hit")
		return authorized
	}
	c.record(ctx, "miss")

	authorized, err := c.load(ctx, identity)
	if err != nil {
		log.Printf("whitelist: lookup for %s failed: %v", identity, err)
		c.record(ctx, "error")
		return false
	}
	c.put(identity, authorized)
	return authorized
}

// Len returns the number of cached entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Contains reports whether identity has a cached entry, without touching recency.
func (c *Cache) Contains(identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[identity]
	return ok
}

func (c *Cache) get(identity string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[identity]
	if !ok {
		return false, false
	}
	e := el.Value.(*entry)
	if c.nowF().Sub(e.cachedAt) >= c.ttl {
		c.order.Remove(el)
		delete(c.items, identity)
		return false, false
	}
	c.order.MoveToFront(el)
	return e.authorized, true
}

func (c *Cache) put(identity string, authorized bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowF()
	if el, ok := c.items[identity]; ok {
		e := el.Value.(*entry)
		e.authorized = authorized
		e.cachedAt = now
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).identity)
		}
	}
	c.items[identity] = c.order.PushFront(&entry{identity: identity, authorized: authorized, cachedAt: now})
}

func (c *Cache) load(ctx context.Context, identity string) (bool, error) {
	if c.group == nil {
		return c.lookup.IsWhitelisted(ctx, identity)
	}
	v, err, _ := c.group.Do(identity, func() (any, error) {
		// Other callers wait on this result; one of them going away must not fail the rest.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.sharedTimeout)
		defer cancel()
		return c.lookup.IsWhitelisted(lookupCtx, identity)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Cache) record(ctx context.Context, result string) {
	if c.lookups != nil {
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

package openmeteo

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/couchcryptid/skycastle-service/internal/observability"
)

// CachedSource wraps a Source with an in-memory LRU cache of archive
// readings. Forecast readings and windows always go to the API because they
// change with every model run.
type CachedSource struct {
	inner   *Source
	cache   *lruCache
	group   singleflight.Group
	metrics *observability.Metrics
}

// NewCachedSource creates a cache decorator around a source.
func NewCachedSource(inner *Source, maxEntries int, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedSource) Reading(ctx context.Context, date time.Time) (domain.Reading, error) {
	date = domain.Day(date)
	if !date.Before(c.inner.Today()) {
		return c.inner.Reading(ctx, date)
	}

	if r, ok := c.cache.get(date); ok {
		c.metrics.WeatherCache.WithLabelValues("hit").Inc()
		return r, nil
	}
	c.metrics.WeatherCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(domain.FormatDate(date), func() (any, error) {
		r, err := c.inner.Reading(ctx, date)
		if err != nil {
			return domain.Reading{}, err
		}
		c.cache.put(date, r)
		return r, nil
	})
	if err != nil {
		return domain.Reading{}, err
	}
	return v.(domain.Reading), nil
}

func (c *CachedSource) Window(ctx context.Context, days int) ([]domain.Reading, error) {
	return c.inner.Window(ctx, days)
}

// lruCache is a simple thread-safe LRU cache of readings keyed by date.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[time.Time]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   time.Time
	value domain.Reading
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[time.Time]*entry),
	}
}

func (c *lruCache) get(key time.Time) (domain.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Reading{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key time.Time, value domain.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

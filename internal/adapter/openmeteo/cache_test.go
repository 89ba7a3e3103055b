package openmeteo

import (
	"testing"
	"time"

	"github.com/couchcryptid/skycastle-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func dayN(n int) time.Time {
	return time.Date(2024, 11, n, 0, 0, 0, 0, time.UTC)
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put(dayN(1), domain.Reading{Temp: 1})
	c.put(dayN(2), domain.Reading{Temp: 2})

	r, ok := c.get(dayN(1))
	assert.True(t, ok)
	assert.Equal(t, 1.0, r.Temp)

	_, ok = c.get(dayN(9))
	assert.False(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put(dayN(1), domain.Reading{Temp: 1})
	c.put(dayN(2), domain.Reading{Temp: 2})
	c.put(dayN(3), domain.Reading{Temp: 3}) // evicts day 1

	_, ok := c.get(dayN(1))
	assert.False(t, ok, "day 1 should have been evicted")

	r, ok := c.get(dayN(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, r.Temp)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put(dayN(1), domain.Reading{Temp: 1})
	c.put(dayN(2), domain.Reading{Temp: 2})
	c.get(dayN(1))
	c.put(dayN(3), domain.Reading{Temp: 3})

	_, ok := c.get(dayN(1))
	assert.True(t, ok, "day 1 was accessed recently, should not be evicted")

	_, ok = c.get(dayN(2))
	assert.False(t, ok, "day 2 should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put(dayN(1), domain.Reading{Temp: 1})
	c.put(dayN(1), domain.Reading{Temp: 11})

	r, ok := c.get(dayN(1))
	assert.True(t, ok)
	assert.Equal(t, 11.0, r.Temp)
	assert.Equal(t, 1, c.len())
}

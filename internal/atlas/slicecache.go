package atlas

import (
	"sync"

	"github.com/dengueviewer/atlas-service/internal/domain"
)

// sliceCache is a thread-safe LRU over rendered time slices, keyed by
// region and bucket. A slice for a populous region can carry thousands of
// simplified polygons, so the working set is bounded by entry count.
type sliceCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // most recently used
	tail       *cacheEntry // least recently used
}

type cacheEntry struct {
	key   string
	value []domain.EnrichedRecord
	prev  *cacheEntry
	next  *cacheEntry
}

func newSliceCache(maxEntries int) *sliceCache {
	return &sliceCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*cacheEntry),
	}
}

func sliceKey(region, bucket string) string {
	return region + "|" + bucket
}

func (c *sliceCache) get(key string) ([]domain.EnrichedRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *sliceCache) put(key string, value []domain.EnrichedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &cacheEntry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *sliceCache) moveToFront(e *cacheEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *sliceCache) addToFront(e *cacheEntry) {
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

func (c *sliceCache) remove(e *cacheEntry) {
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

func (c *sliceCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}

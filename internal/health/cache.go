package health

import (
	"container/list"
	"sync"
	"time"
)

// reportCache is a thread-safe LRU cache for health reports keyed by state
// fingerprint.
type reportCache struct {
	mu      sync.RWMutex
	items   map[string]*list.Element
	lru     *list.List
	maxSize int
	ttl     time.Duration
}

type cacheItem struct {
	key       string
	report    *Report
	expiresAt time.Time
}

func newReportCache(maxSize int, ttl time.Duration) *reportCache {
	return &reportCache{
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// get returns a copy of the cached report, or nil on miss or expiry. Expired
// items are left in place; set reclaims them.
func (c *reportCache) get(key string) *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	item := elem.Value.(*cacheItem)
	if time.Now().After(item.expiresAt) {
		return nil
	}
	report := *item.report
	return &report
}

func (c *reportCache) set(key string, report *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		item := elem.Value.(*cacheItem)
		item.report = report
		item.expiresAt = time.Now().Add(c.ttl)
		return
	}

	elem := c.lru.PushFront(&cacheItem{
		key:       key,
		report:    report,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
}

func (c *reportCache) remove(elem *list.Element) {
	c.lru.Remove(elem)
	delete(c.items, elem.Value.(*cacheItem).key)
}

func (c *reportCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru = list.New()
}

func (c *reportCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Len()
}

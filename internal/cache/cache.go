// Package cache holds decrypted field values in memory so repeated page
// reads do not redo AES-GCM work. Entries are keyed by ciphertext
// fingerprint and bounded by a total byte budget with strict LRU eviction.
// The cache is process-local and rebuilt from cold on restart.
package cache

import (
	"container/list"
	"sync"

	"github.com/avelichko/casevault/internal/metrics"
)

type entry struct {
	fingerprint string
	plaintext   string
	size        int64
}

// Cache is a byte-budgeted LRU map from ciphertext fingerprint to plaintext.
// Safe for concurrent use. Construct one per session and inject it into the
// repositories that need it; there is no package-level instance.
type Cache struct {
	mu     sync.Mutex
	budget int64
	size   int64
	ll     *list.List // front is most recently used
	items  map[string]*list.Element
}

// New returns a cache that will hold at most budgetBytes of plaintext.
func New(budgetBytes int64) *Cache {
	return &Cache{
		budget: budgetBytes,
		ll:     list.New(),
		items:  make(map[string]*list.Element),
	}
}

// Get returns the cached plaintext for a fingerprint and refreshes its
// recency on a hit.
func (c *Cache) Get(fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		return "", false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).plaintext, true
}

// Put stores a decrypted value. If the entry alone exceeds the budget the
// call is a no-op: such a value is never cached rather than evicting the
// whole cache for a single oversized field. Eviction completes before Put
// returns, so the budget invariant holds at every call boundary.
func (c *Cache) Put(fingerprint, plaintext string, sizeBytes int64) {
	if sizeBytes > c.budget {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fingerprint]; ok {
		e := el.Value.(*entry)
		c.size += sizeBytes - e.size
		e.plaintext = plaintext
		e.size = sizeBytes
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{fingerprint: fingerprint, plaintext: plaintext, size: sizeBytes})
		c.items[fingerprint] = el
		c.size += sizeBytes
	}

	for c.size > c.budget {
		c.removeOldest()
		metrics.CacheEvictions.Inc()
	}
}

// Invalidate drops a single entry. Called when the owning record is updated
// or deleted so stale plaintext can never be served.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[fingerprint]; ok {
		c.remove(el)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[string]*list.Element)
	c.size = 0
}

// Size reports the total bytes currently cached.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) removeOldest() {
	if el := c.ll.Back(); el != nil {
		c.remove(el)
	}
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.fingerprint)
	c.size -= e.size
}

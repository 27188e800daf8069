package cache

import (
	"container/list"
	"net/url"
	"sync"
	"time"

	"github.com/rohmanhakim/politebot/pkg/hashutil"
	"github.com/rohmanhakim/politebot/pkg/urlutil"
)

const (
	DefaultCapacity = 50
	DefaultTTL      = time.Hour
)

type memoryEntry struct {
	key       string
	entry     Entry
	expiresAt time.Time
}

// MemoryCache is an in-memory LRU implementation of Cache.
// Entries expire ttl after they were stored; the least recently used entry is
// evicted once capacity is reached.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	lruList  *list.List
	store    map[string]*list.Element
	now      func() time.Time
}

// NewMemoryCache creates an empty cache. Non-positive arguments fall back to
// DefaultCapacity and DefaultTTL.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		capacity: capacity,
		ttl:      ttl,
		lruList:  list.New(),
		store:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

// SetClockForTest replaces the time source used for expiry.
func (c *MemoryCache) SetClockForTest(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, exists := c.store[key]
	if !exists {
		return Entry{}, false
	}

	item := element.Value.(*memoryEntry)
	if !c.now().Before(item.expiresAt) {
		c.removeElement(element)
		return Entry{}, false
	}

	c.lruList.MoveToFront(element)
	return item.entry, true
}

func (c *MemoryCache) Put(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if entry.StoredAt.IsZero() {
		entry.StoredAt = now
	}
	item := &memoryEntry{
		key:       key,
		entry:     entry,
		expiresAt: now.Add(c.ttl),
	}

	if element, exists := c.store[key]; exists {
		element.Value = item
		c.lruList.MoveToFront(element)
		return
	}

	c.store[key] = c.lruList.PushFront(item)
	for c.lruList.Len() > c.capacity {
		c.removeElement(c.lruList.Back())
	}
}

func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, exists := c.store[key]; exists {
		c.removeElement(element)
	}
}

func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lruList.Init()
	c.store = make(map[string]*list.Element)
}

// Size counts stored entries, including ones that expired but were not read since.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lruList.Len()
}

func (c *MemoryCache) removeElement(element *list.Element) {
	item := element.Value.(*memoryEntry)
	c.lruList.Remove(element)
	delete(c.store, item.key)
}

// Key derives the cache key of a request URL: the SHA-256 of its canonical form.
func Key(u url.URL) string {
	canonical := urlutil.Canonicalize(u)
	key, err := hashutil.HashBytes([]byte(canonical.String()), hashutil.HashAlgoSHA256)
	if err != nil {
		return canonical.String()
	}
	return key
}

package origin

import (
	"container/list"
	"sync"
	"time"
)

// Store maps origins to their Entry. With a positive maxEntries the least
// recently used entries are dropped once the bound is exceeded; zero means
// unbounded.
//
// Only entries that nobody holds and whose last request no longer owes a
// wait are dropped. When no entry qualifies the store stays over its bound.
type Store struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	lruList    *list.List
	now        func() time.Time
}

func NewStore(maxEntries int) *Store {
	return NewStoreWithClock(maxEntries, time.Now)
}

// NewStoreWithClock creates a store that judges entry quietness with now.
func NewStoreWithClock(maxEntries int, now func() time.Time) *Store {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Store{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lruList:    list.New(),
		now:        now,
	}
}

// Get returns the entry for origin, creating it on first use. The entry is
// held, and never evicted, until it is passed to Done.
func (s *Store) Get(origin string) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if element, ok := s.entries[origin]; ok {
		s.lruList.MoveToFront(element)
		entry := element.Value.(*Entry)
		entry.holders++
		return entry
	}

	entry := newEntry(origin)
	entry.holders++
	s.entries[origin] = s.lruList.PushFront(entry)
	s.evict()
	return entry
}

// Done releases a hold taken by Get.
func (s *Store) Done(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.holders > 0 {
		entry.holders--
	}
	s.evict()
}

// Peek returns the entry for origin without creating it, holding it or
// touching recency.
func (s *Store) Peek(origin string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, ok := s.entries[origin]
	if !ok {
		return nil, false
	}
	return element.Value.(*Entry), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lruList.Len()
}

// evict must be called with mu held.
func (s *Store) evict() {
	if s.maxEntries == 0 {
		return
	}
	now := s.now()
	for element := s.lruList.Back(); element != nil && s.lruList.Len() > s.maxEntries; {
		prev := element.Prev()
		entry := element.Value.(*Entry)
		if entry.holders == 0 && !entry.busy() && entry.quiet(now) {
			s.lruList.Remove(element)
			delete(s.entries, entry.origin)
		}
		element = prev
	}
}

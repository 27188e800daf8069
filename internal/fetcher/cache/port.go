package cache

import (
	"net/http"
	"time"
)

// Cache is the port the HTTP fetcher stores reusable responses in.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the entry stored under key if it is present and not expired.
	Get(key string) (Entry, bool)
	// Put stores entry under key, replacing any previous value.
	Put(key string, entry Entry)
	// Delete removes key. Deleting a missing key is a no-op.
	Delete(key string)
	// Clear removes every entry.
	Clear()
	// Size returns the number of live entries.
	Size() int
}

// Entry is a buffered response kept for reuse.
type Entry struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

package origin

import (
	"context"
	"sync"
	"time"

	"github.com/rohmanhakim/politebot/internal/robots"
)

// Entry is the politeness state of one origin (scheme://host[:port]).
//
// The request slot serializes the per-origin critical section: reading
// LastRequestAt, waiting out the delay and recording the new request time.
// Field reads go through mu so that they never queue behind a request that
// is sleeping while it holds the slot.
type Entry struct {
	origin string
	slot   chan struct{}
	// holders counts Get calls not yet matched by Done; guarded by Store.mu
	holders int

	mu               sync.RWMutex
	lastRequestAt    time.Time
	quietAt          time.Time
	ruleSet          *robots.RuleSet
	ruleSetFetchedAt time.Time
}

func newEntry(origin string) *Entry {
	return &Entry{
		origin: origin,
		slot:   make(chan struct{}, 1),
	}
}

func (e *Entry) Origin() string {
	return e.origin
}

// Acquire takes the request slot, giving up when ctx is done.
func (e *Entry) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case e.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken with Acquire.
func (e *Entry) Release() {
	<-e.slot
}

func (e *Entry) busy() bool {
	return len(e.slot) > 0
}

// LastRequestAt is zero when the origin was never requested.
// Only a holder of the request slot sees a value no other request is about to change.
func (e *Entry) LastRequestAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRequestAt
}

// MarkRequest records a dispatch at t. No later request may be owed a wait
// once hold has passed. The caller must hold the request slot.
func (e *Entry) MarkRequest(t time.Time, hold time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastRequestAt = t
	e.quietAt = t.Add(hold)
}

// quiet reports whether forgetting the entry at now cannot shorten a wait.
func (e *Entry) quiet(now time.Time) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !now.Before(e.quietAt)
}

// RuleSet returns the cached rules if they are younger than ttl at now.
func (e *Entry) RuleSet(now time.Time, ttl time.Duration) (*robots.RuleSet, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.ruleSet == nil {
		return nil, false
	}
	if now.Sub(e.ruleSetFetchedAt) >= ttl {
		return nil, false
	}
	return e.ruleSet, true
}

func (e *Entry) RuleSetFetchedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ruleSetFetchedAt
}

// StoreRuleSet replaces the cached rules wholesale.
func (e *Entry) StoreRuleSet(ruleSet *robots.RuleSet, fetchedAt time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSet = ruleSet
	e.ruleSetFetchedAt = fetchedAt
}

// ClearRuleSet drops the cached rules so the next request refetches them.
func (e *Entry) ClearRuleSet() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSet = nil
	e.ruleSetFetchedAt = time.Time{}
}

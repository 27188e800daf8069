package limiter

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/politebot/pkg/timeutil"
)

// DelayPolicy
// Computes how long a request to one origin has to wait.
// Responsibilities:
// - Combine the origin's declared crawl-delay with the configured minimum
// - Add optional jitter
// - Decide whether the remaining wait fits under the configured maximum
//
// DelayPolicy holds no per-origin state; callers pass the origin's last
// request time in. It is safe for concurrent use.
type DelayPolicy struct {
	minimum time.Duration
	maximum time.Duration
	jitter  time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewDelayPolicy(minimum, maximum, jitter time.Duration, randomSeed int64) *DelayPolicy {
	if minimum < 0 {
		minimum = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	return &DelayPolicy{
		minimum: minimum,
		maximum: maximum,
		jitter:  jitter,
		rng:     rand.New(rand.NewSource(randomSeed)),
	}
}

func (p *DelayPolicy) Minimum() time.Duration {
	return p.minimum
}

func (p *DelayPolicy) Maximum() time.Duration {
	return p.maximum
}

func (p *DelayPolicy) Jitter() time.Duration {
	return p.jitter
}

// EffectiveDelay = max(crawlDelay, minimum) + jitter.
// An undeclared crawl delay counts as zero.
func (p *DelayPolicy) EffectiveDelay(crawlDelay time.Duration, declared bool) time.Duration {
	if !declared || crawlDelay < 0 {
		crawlDelay = 0
	}

	delay := timeutil.MaxDuration([]time.Duration{crawlDelay, p.minimum})
	delay += p.computeJitter()

	if delay < 0 {
		return 0
	}
	return delay
}

// ResolveWait returns the time left until effective has elapsed since
// lastRequestAt. A zero lastRequestAt means the origin was never requested.
// ok is false when the wait is longer than the configured maximum.
func (p *DelayPolicy) ResolveWait(effective time.Duration, lastRequestAt, now time.Time) (wait time.Duration, ok bool) {
	if lastRequestAt.IsZero() {
		return 0, true
	}

	elapsed := now.Sub(lastRequestAt)
	if elapsed >= effective {
		return 0, true
	}

	wait = effective - elapsed
	return wait, wait <= p.maximum
}

func (p *DelayPolicy) computeJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}

	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return timeutil.ComputeJitter(p.jitter, p.rng)
}

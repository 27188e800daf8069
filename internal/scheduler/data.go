package scheduler

import (
	"net/http"
	"time"

	"github.com/rohmanhakim/politebot/internal/fetcher"
	"github.com/rohmanhakim/politebot/internal/robots"
)

// RequestOptions tunes a single Request. The zero value asks for a buffered
// body with default headers, where HTTP error statuses fail the request.
type RequestOptions struct {
	Mode    fetcher.FetchMode
	Headers http.Header
	// AcceptHTTPErrors returns 4xx/5xx content responses instead of failing.
	AcceptHTTPErrors bool
	DisableCache     bool
	DisableDNSCache  bool
}

// Decision is what Check reports about a URL without requesting it.
type Decision struct {
	URL    string
	Origin string
	// Path is the escaped path and query robots.txt was evaluated against.
	Path    string
	Allowed bool
	Reason  robots.DecisionReason
	// Line is the index of the deciding robots.txt directive, -1 if none matched.
	Line       int
	CrawlDelay *time.Duration
	// EffectiveDelay = max(crawl-delay, minimum delay) + jitter.
	EffectiveDelay time.Duration
	// Wait is how long a Request issued now would sleep before dispatch.
	Wait time.Duration
	// WithinMaximum is false when a Request issued now would fail with CauseDelayExceeded.
	WithinMaximum bool
	RobotsDigest  string
	Sitemaps      []string
}

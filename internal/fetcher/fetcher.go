package fetcher

import (
	"context"

	"github.com/rohmanhakim/politebot/pkg/failure"
)

// Fetcher performs one outbound HTTP GET. Politeness (robots.txt, delays) is
// the caller's concern; a Fetcher only moves bytes.
type Fetcher interface {
	Fetch(
		ctx context.Context,
		fetchParam FetchParam,
	) (FetchResult, failure.ClassifiedError)
}

package robots

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rohmanhakim/politebot/internal/fetcher"
	"github.com/rohmanhakim/politebot/internal/metadata"
)

/*
RobotsFetcher

Responsibilities:
- Fetch ${origin}/robots.txt through the injected fetcher.Fetcher
- Map the HTTP outcome to a RuleSet (RFC 9309 §2.3.1)
- Report whether the result may be cached by the caller

Status handling:
- below 400: the body is parsed (redirects are followed by the fetcher)
- 400-499: no robots.txt, everything is allowed; the result is not cacheable
- 500 and above: server error, nothing may be assumed

Only the first MaxSize bytes of the body are read.
The fetcher does not cache; ownership of parsed rules lies with the scheduler.
*/
type RobotsFetcher struct {
	metadataSink metadata.MetadataSink
	fetcher      fetcher.Fetcher
	userAgent    string
}

// RobotsFetchResult represents the result of fetching a robots.txt file.
type RobotsFetchResult struct {
	RuleSet     *RuleSet
	FetchedAt   time.Time
	SourceURL   string
	HTTPStatus  int
	ContentType string
	// Cacheable is false for the synthetic allow-all set of a 4xx answer.
	Cacheable bool
}

func NewRobotsFetcher(
	metadataSink metadata.MetadataSink,
	f fetcher.Fetcher,
	userAgent string,
) *RobotsFetcher {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &RobotsFetcher{
		metadataSink: metadataSink,
		fetcher:      f,
		userAgent:    userAgent,
	}
}

// Fetch retrieves and parses the robots.txt of origin ("scheme://host[:port]").
// The response cache is bypassed and HTTP error statuses are inspected here
// instead of being turned into fetch errors.
func (f *RobotsFetcher) Fetch(ctx context.Context, origin string) (RobotsFetchResult, *RobotsError) {
	callerMethod := "RobotsFetcher.Fetch"
	robotsURL := origin + "/robots.txt"

	parsedURL, err := url.Parse(robotsURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		robotsErr := &RobotsError{
			Message:   fmt.Sprintf("cannot build robots.txt url from %q", origin),
			Retryable: false,
			Cause:     ErrCauseInvalidOrigin,
			Err:       err,
		}
		f.recordError(callerMethod, origin, robotsErr)
		return RobotsFetchResult{}, robotsErr
	}

	param := fetcher.NewFetchParam(*parsedURL, f.userAgent).
		WithDisableCache(true).
		WithAcceptHTTPErrors(true).
		WithMaxBodySize(MaxSize)

	result, fetchErr := f.fetcher.Fetch(ctx, param)
	if fetchErr != nil {
		robotsErr := &RobotsError{
			Message:   fetchErr.Error(),
			Retryable: true,
			Cause:     ErrCauseHttpFetchFailure,
			Err:       fetchErr,
		}
		f.recordError(callerMethod, origin, robotsErr)
		return RobotsFetchResult{}, robotsErr
	}

	fetched := RobotsFetchResult{
		FetchedAt:   time.Now(),
		SourceURL:   robotsURL,
		HTTPStatus:  result.Code(),
		ContentType: result.ContentType(),
	}

	switch {
	case result.Code() >= 500:
		robotsErr := &RobotsError{
			Message:    fmt.Sprintf("server error (%d) when fetching %s", result.Code(), robotsURL),
			Retryable:  true,
			Cause:      ErrCauseHttpServerError,
			StatusCode: result.Code(),
		}
		f.recordError(callerMethod, origin, robotsErr)
		return RobotsFetchResult{}, robotsErr

	case result.Code() >= 400:
		fetched.RuleSet = AllowAll()
		fetched.Cacheable = false

	default:
		ruleSet, parseErr := Parse(string(result.Body()))
		if parseErr != nil {
			robotsErr := &RobotsError{
				Message:   parseErr.Error(),
				Retryable: false,
				Cause:     ErrCauseParseError,
				Err:       parseErr,
			}
			f.recordError(callerMethod, origin, robotsErr)
			return RobotsFetchResult{}, robotsErr
		}
		fetched.RuleSet = ruleSet
		fetched.Cacheable = true
	}

	f.metadataSink.RecordRobots(
		origin,
		fetched.HTTPStatus,
		fetched.RuleSet.Digest(),
		fetched.RuleSet.Len(),
		fetched.Cacheable,
	)
	return fetched, nil
}

func (f *RobotsFetcher) recordError(callerMethod, origin string, err *RobotsError) {
	attrs := []metadata.Attribute{
		metadata.NewAttr(metadata.AttrOrigin, origin),
	}
	if err.StatusCode != 0 {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrHTTPStatus, strconv.Itoa(err.StatusCode)))
	}
	f.metadataSink.RecordError(
		time.Now(),
		"robots",
		callerMethod,
		mapRobotsErrorToMetadataCause(err),
		err.Error(),
		attrs,
	)
}

func (f *RobotsFetcher) UserAgent() string {
	return f.userAgent
}

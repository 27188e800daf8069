package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rohmanhakim/politebot/internal/fetcher/cache"
	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/pkg/failure"
	"github.com/rohmanhakim/politebot/pkg/retry"
	"github.com/rohmanhakim/politebot/pkg/timeutil"
	"github.com/rs/zerolog"
)

/*
Responsibilities

- Perform HTTP GET requests
- Apply default headers, caller headers and timeouts
- Bound redirect chains
- Reuse buffered responses and DNS answers when allowed
- Classify transport failures and HTTP error statuses

Fetch Semantics

- Transport failures, timeouts, 429 and 5xx are retried with backoff unless
  the request lowers its attempt budget
- Buffered bodies may be capped at a maximum size
- 4xx/5xx become errors unless the caller accepts HTTP errors
- Only buffered 2xx responses are stored in the response cache
- All responses are logged with metadata

The fetcher never parses content; it only returns bytes and metadata.
*/

const (
	DefaultTimeout = 60 * time.Second
	maxRedirects   = 10
)

var errRedirectLimit = errors.New("redirect limit reached")

// HTTPParam configures an HTTPFetcher.
type HTTPParam struct {
	// Timeout bounds one attempt, including reading a buffered body.
	Timeout    time.Duration
	RetryParam retry.RetryParam
	// ResponseCache is optional; nil disables response caching.
	ResponseCache cache.Cache
	DNSCacheTTL   time.Duration
}

// DefaultRetryParam retries a failed request twice.
func DefaultRetryParam() retry.RetryParam {
	return retry.NewRetryParam(
		100*time.Millisecond,
		time.Now().UnixNano(),
		3,
		timeutil.NewBackoffParam(500*time.Millisecond, 2.0, 5*time.Second),
	)
}

type HTTPFetcher struct {
	metadataSink  metadata.MetadataSink
	logger        zerolog.Logger
	httpClient    *http.Client
	responseCache cache.Cache
	retryParam    retry.RetryParam
	timeout       time.Duration
}

// NewHTTPFetcher creates a fetcher whose transport resolves hosts through an
// in-memory DNS cache.
func NewHTTPFetcher(
	metadataSink metadata.MetadataSink,
	logger zerolog.Logger,
	param HTTPParam,
) *HTTPFetcher {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	dns := newDNSCache(net.DefaultResolver, param.DNSCacheTTL)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.dialContext(dialer)

	return NewHTTPFetcherWithClient(metadataSink, logger, &http.Client{Transport: transport}, param)
}

// NewHTTPFetcherWithClient creates a fetcher around a custom HTTP client.
// This is useful for testing.
func NewHTTPFetcherWithClient(
	metadataSink metadata.MetadataSink,
	logger zerolog.Logger,
	httpClient *http.Client,
	param HTTPParam,
) *HTTPFetcher {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	if param.Timeout <= 0 {
		param.Timeout = DefaultTimeout
	}
	if param.RetryParam.MaxAttempts < 1 {
		param.RetryParam.MaxAttempts = 1
	}
	if httpClient.CheckRedirect == nil {
		httpClient.CheckRedirect = limitRedirects
	}

	return &HTTPFetcher{
		metadataSink:  metadataSink,
		logger:        logger.With().Str("component", "fetcher").Logger(),
		httpClient:    httpClient,
		responseCache: param.ResponseCache,
		retryParam:    param.RetryParam,
		timeout:       param.Timeout,
	}
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errRedirectLimit
	}
	return nil
}

func (h *HTTPFetcher) Fetch(
	ctx context.Context,
	fetchParam FetchParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HTTPFetcher.Fetch"
	startTime := time.Now()
	fetchUrl := fetchParam.fetchUrl

	cacheable := h.responseCache != nil &&
		!fetchParam.disableCache &&
		fetchParam.mode == ModeBuffered
	cacheKey := ""
	if cacheable {
		cacheKey = cache.Key(fetchUrl)
		if entry, ok := h.responseCache.Get(cacheKey); ok {
			result := FetchResult{
				url:  fetchUrl,
				body: entry.Body,
				meta: ResponseMeta{
					statusCode:          entry.StatusCode,
					transferredSizeByte: uint64(len(entry.Body)),
					responseHeaders:     entry.Header.Clone(),
					fromCache:           true,
				},
			}
			h.metadataSink.RecordFetch(
				fetchUrl.String(),
				result.Code(),
				time.Since(startTime),
				result.ContentType(),
				0,
				true,
			)
			return result, nil
		}
	}

	if fetchParam.disableDNSCache {
		ctx = withoutDNSCache(ctx)
	}

	h.logger.Debug().
		Str(string(metadata.AttrURL), fetchUrl.String()).
		Stringer("mode", fetchParam.mode).
		Msg("fetching")

	retryParam := h.retryParam
	if fetchParam.maxAttempts > 0 {
		retryParam.MaxAttempts = fetchParam.maxAttempts
	}

	outcome := retry.Retry(ctx, retryParam, func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam)
	})

	retryCount := outcome.Attempts() - 1
	if retryCount < 0 {
		retryCount = 0
	}

	if err := outcome.Err(); err != nil {
		h.metadataSink.RecordFetch(fetchUrl.String(), statusOf(err), time.Since(startTime), "", retryCount, false)

		var retryErr *retry.RetryError
		if errors.As(err, &retryErr) {
			h.recordRetryError(callerMethod, fetchUrl, retryErr)
		}

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			h.recordFetchError(callerMethod, fetchUrl, fetchErr)
			return FetchResult{}, fetchErr
		}
		return FetchResult{}, err
	}

	result := outcome.Value()
	h.metadataSink.RecordFetch(
		fetchUrl.String(),
		result.Code(),
		time.Since(startTime),
		result.ContentType(),
		retryCount,
		false,
	)

	if cacheable && !result.Truncated() && result.Code() >= 200 && result.Code() < 300 {
		h.responseCache.Put(cacheKey, cache.Entry{
			StatusCode: result.Code(),
			Header:     result.Headers().Clone(),
			Body:       result.Body(),
			StoredAt:   time.Now(),
		})
	}

	return result, nil
}

func statusOf(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return 0
}

func (h *HTTPFetcher) recordFetchError(callerMethod string, fetchUrl url.URL, err *FetchError) {
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		mapFetchErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
		},
	)
}

func (h *HTTPFetcher) recordRetryError(callerMethod string, fetchUrl url.URL, err *retry.RetryError) {
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		metadata.CauseRetryFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrMessage, err.Message),
			metadata.NewAttr(metadata.AttrURL, fetchUrl.String()),
		},
	)
}

func (h *HTTPFetcher) performFetch(ctx context.Context, fetchParam FetchParam) (FetchResult, failure.ClassifiedError) {
	fetchUrl := fetchParam.fetchUrl
	attemptCtx, cancel := context.WithTimeout(ctx, h.timeout)

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		cancel()
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseInvalidRequest,
		}
	}
	req.Header = requestHeaders(fetchUrl, fetchParam.userAgent, fetchParam.headers)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		cancel()
		return FetchResult{}, classifyTransportError(ctx, err)
	}

	if !fetchParam.acceptHTTPErrors {
		if statusErr := classifyStatus(resp.StatusCode); statusErr != nil {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			cancel()
			return FetchResult{}, statusErr
		}
	}

	meta := ResponseMeta{
		statusCode:      resp.StatusCode,
		responseHeaders: resp.Header,
	}

	if fetchParam.mode == ModeStream {
		return FetchResult{
			url:    fetchUrl,
			stream: &cancelOnClose{ReadCloser: resp.Body, cancel: cancel},
			meta:   meta,
		}, nil
	}

	defer cancel()
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if fetchParam.maxBodySize > 0 {
		reader = io.LimitReader(resp.Body, fetchParam.maxBodySize+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, classifyTransportError(ctx, err)
		}
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read response body: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}
	if fetchParam.maxBodySize > 0 && int64(len(body)) > fetchParam.maxBodySize {
		body = body[:fetchParam.maxBodySize]
		meta.truncated = true
	}
	meta.transferredSizeByte = uint64(len(body))

	return FetchResult{
		url:  fetchUrl,
		body: body,
		meta: meta,
	}, nil
}

func classifyTransportError(ctx context.Context, err error) *FetchError {
	if ctx.Err() != nil {
		return &FetchError{
			Message:   fmt.Sprintf("request canceled: %v", ctx.Err()),
			Retryable: false,
			Cause:     ErrCauseCanceled,
		}
	}
	if errors.Is(err, errRedirectLimit) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseRedirectLimitExceeded,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{
			Message:   fmt.Sprintf("request timed out: %v", err),
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}

	return &FetchError{
		Message:   fmt.Sprintf("request failed: %v", err),
		Retryable: true,
		Cause:     ErrCauseNetworkFailure,
	}
}

// classifyStatus returns nil for statuses below 400.
func classifyStatus(statusCode int) *FetchError {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &FetchError{
			Message:    "rate limited (429)",
			Retryable:  true,
			Cause:      ErrCauseRequestTooMany,
			StatusCode: statusCode,
		}
	case statusCode >= 500:
		return &FetchError{
			Message:    fmt.Sprintf("server error: %d", statusCode),
			Retryable:  true,
			Cause:      ErrCauseRequest5xx,
			StatusCode: statusCode,
		}
	case statusCode >= 400:
		return &FetchError{
			Message:    fmt.Sprintf("client error: %d", statusCode),
			Retryable:  false,
			Cause:      ErrCauseRequest4xx,
			StatusCode: statusCode,
		}
	}
	return nil
}

// cancelOnClose releases the attempt context once a streamed body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

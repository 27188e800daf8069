package fetcher

import (
	"io"
	"net/http"
	"net/url"
)

// FetchMode selects how the response body is handed back.
type FetchMode int

const (
	// ModeBuffered reads the whole body into FetchResult.Body.
	ModeBuffered FetchMode = iota
	// ModeStream leaves the body open in FetchResult.Stream; the caller closes it.
	ModeStream
)

func (m FetchMode) String() string {
	if m == ModeStream {
		return "stream"
	}
	return "buffered"
}

// HTTP boundary

type FetchParam struct {
	fetchUrl         url.URL
	userAgent        string
	headers          http.Header
	mode             FetchMode
	disableCache     bool
	disableDNSCache  bool
	acceptHTTPErrors bool
	// zero keeps the fetcher's configured attempts
	maxAttempts int
	// zero reads the whole body
	maxBodySize int64
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
		mode:      ModeBuffered,
	}
}

// WithHeaders merges headers over the defaults; names are case-insensitive
// and caller values win.
func (p FetchParam) WithHeaders(headers http.Header) FetchParam {
	p.headers = headers.Clone()
	return p
}

func (p FetchParam) WithMode(mode FetchMode) FetchParam {
	p.mode = mode
	return p
}

// WithDisableCache bypasses the response cache for both lookup and store.
func (p FetchParam) WithDisableCache(disable bool) FetchParam {
	p.disableCache = disable
	return p
}

// WithDisableDNSCache resolves the host afresh for this request.
func (p FetchParam) WithDisableDNSCache(disable bool) FetchParam {
	p.disableDNSCache = disable
	return p
}

// WithAcceptHTTPErrors returns 4xx/5xx responses as results instead of errors.
func (p FetchParam) WithAcceptHTTPErrors(accept bool) FetchParam {
	p.acceptHTTPErrors = accept
	return p
}

// WithMaxAttempts overrides the fetcher's retry budget for this request.
// One disables retries.
func (p FetchParam) WithMaxAttempts(n int) FetchParam {
	p.maxAttempts = n
	return p
}

// WithMaxBodySize stops reading a buffered body after n bytes. The kept
// prefix is returned and the result reports Truncated.
func (p FetchParam) WithMaxBodySize(n int64) FetchParam {
	p.maxBodySize = n
	return p
}

func (p FetchParam) URL() url.URL {
	return p.fetchUrl
}

func (p FetchParam) UserAgent() string {
	return p.userAgent
}

func (p FetchParam) Headers() http.Header {
	return p.headers.Clone()
}

func (p FetchParam) Mode() FetchMode {
	return p.mode
}

func (p FetchParam) DisableCache() bool {
	return p.disableCache
}

func (p FetchParam) DisableDNSCache() bool {
	return p.disableDNSCache
}

func (p FetchParam) AcceptHTTPErrors() bool {
	return p.acceptHTTPErrors
}

func (p FetchParam) MaxAttempts() int {
	return p.maxAttempts
}

func (p FetchParam) MaxBodySize() int64 {
	return p.maxBodySize
}

type FetchResult struct {
	url    url.URL
	body   []byte
	stream io.ReadCloser
	meta   ResponseMeta
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

// Body is nil for streamed results.
func (f *FetchResult) Body() []byte {
	return f.body
}

// Stream is nil for buffered results.
func (f *FetchResult) Stream() io.ReadCloser {
	return f.stream
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	return f.meta.transferredSizeByte
}

func (f *FetchResult) Headers() http.Header {
	return f.meta.responseHeaders
}

func (f *FetchResult) ContentType() string {
	return f.meta.responseHeaders.Get("Content-Type")
}

func (f *FetchResult) FromCache() bool {
	return f.meta.fromCache
}

// Truncated reports that the body was cut at the requested maximum size.
func (f *FetchResult) Truncated() bool {
	return f.meta.truncated
}

type ResponseMeta struct {
	statusCode          int
	transferredSizeByte uint64
	responseHeaders     http.Header
	fromCache           bool
	truncated           bool
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	url url.URL,
	body []byte,
	statusCode int,
	responseHeaders http.Header,
) FetchResult {
	if responseHeaders == nil {
		responseHeaders = http.Header{}
	}
	return FetchResult{
		url:  url,
		body: body,
		meta: ResponseMeta{
			statusCode:          statusCode,
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     responseHeaders,
		},
	}
}

// NewStreamResultForTest is NewFetchResultForTest for streamed results.
func NewStreamResultForTest(
	url url.URL,
	stream io.ReadCloser,
	statusCode int,
	responseHeaders http.Header,
) FetchResult {
	if responseHeaders == nil {
		responseHeaders = http.Header{}
	}
	return FetchResult{
		url:    url,
		stream: stream,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}

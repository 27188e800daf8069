package fetcher_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/politebot/internal/fetcher"
	"github.com/rohmanhakim/politebot/internal/fetcher/cache"
	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/pkg/retry"
	"github.com/rohmanhakim/politebot/pkg/timeutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMetadataSink is a test double for metadata.MetadataSink
type mockMetadataSink struct {
	mu          sync.Mutex
	fetchEvents []fetchEvent
	errorEvents []errorEvent
}

type fetchEvent struct {
	fetchUrl    string
	httpStatus  int
	contentType string
	retryCount  int
	fromCache   bool
}

type errorEvent struct {
	packageName string
	action      string
	cause       metadata.ErrorCause
	details     string
	attrs       []metadata.Attribute
}

func (m *mockMetadataSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	fromCache bool,
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchEvents = append(m.fetchEvents, fetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		contentType: contentType,
		retryCount:  retryCount,
		fromCache:   fromCache,
	})
}

func (m *mockMetadataSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause metadata.ErrorCause,
	details string,
	attrs []metadata.Attribute,
) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorEvents = append(m.errorEvents, errorEvent{
		packageName: packageName,
		action:      action,
		cause:       cause,
		details:     details,
		attrs:       attrs,
	})
}

func (m *mockMetadataSink) RecordRobots(origin string, httpStatus int, digest string, lineCount int, cached bool) {
}

func (m *mockMetadataSink) causes() []metadata.ErrorCause {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]metadata.ErrorCause, 0, len(m.errorEvents))
	for _, e := range m.errorEvents {
		out = append(out, e.cause)
	}
	return out
}

// createTestRetryParam creates retry parameters with millisecond backoff
func createTestRetryParam(maxAttempts int) retry.RetryParam {
	return retry.NewRetryParam(
		0,
		42,
		maxAttempts,
		timeutil.NewBackoffParam(
			time.Millisecond,
			2.0,
			5*time.Millisecond,
		),
	)
}

func newTestFetcher(sink metadata.MetadataSink, param fetcher.HTTPParam) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcherWithClient(sink, zerolog.Nop(), &http.Client{}, param)
}

func mustParseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello World</body></html>"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(1)})

	result, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, server.URL+"/page"), "TestBot/1.0"))
	require.Nil(t, err)

	assert.Equal(t, http.StatusOK, result.Code())
	assert.Equal(t, "<html><body>Hello World</body></html>", string(result.Body()))
	assert.Equal(t, uint64(len(result.Body())), result.SizeByte())
	assert.Equal(t, "text/html; charset=utf-8", result.ContentType())
	assert.Nil(t, result.Stream())
	assert.False(t, result.FromCache())

	require.Len(t, sink.fetchEvents, 1)
	assert.Equal(t, server.URL+"/page", sink.fetchEvents[0].fetchUrl)
	assert.Equal(t, http.StatusOK, sink.fetchEvents[0].httpStatus)
	assert.Equal(t, 0, sink.fetchEvents[0].retryCount)
}

func TestHTTPFetcher_Fetch_Headers(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{RetryParam: createTestRetryParam(1)})

	param := fetcher.NewFetchParam(mustParseURL(t, server.URL+"/a?b=1"), "TestBot/1.0").
		WithHeaders(http.Header{
			"accept":   []string{"application/json"},
			"X-Custom": []string{"yes"},
		})

	_, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)

	assert.Equal(t, "TestBot/1.0", got.Get("User-Agent"))
	assert.Equal(t, "application/json", got.Get("Accept"))
	assert.Equal(t, "yes", got.Get("X-Custom"))
	assert.Equal(t, "en-US,en;q=0.5", got.Get("Accept-Language"))
	assert.Equal(t, "max-age=0", got.Get("Cache-Control"))
	assert.Equal(t, "1", got.Get("Upgrade-Insecure-Requests"))
	assert.Equal(t, server.URL, got.Get("Referer"))
	assert.Equal(t, "document", got.Get("Sec-Fetch-Dest"))
	assert.Equal(t, "navigate", got.Get("Sec-Fetch-Mode"))
	assert.Equal(t, "none", got.Get("Sec-Fetch-Site"))
	assert.Equal(t, `"NetScrape";v="1"`, got.Get("Sec-Ch-Ua"))
	assert.Equal(t, "?0", got.Get("Sec-Ch-Ua-Mobile"))
	assert.Equal(t, "Windows", got.Get("Sec-Ch-Ua-Platform"))
}

func TestHTTPFetcher_Fetch_CallerCanOverrideUserAgent(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{RetryParam: createTestRetryParam(1)})
	param := fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0").
		WithHeaders(http.Header{"User-Agent": []string{"Other/2.0"}})

	_, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)
	assert.Equal(t, "Other/2.0", got)
}

func TestHTTPFetcher_Fetch_HTTPErrorStatus(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		maxAttempts   int
		wantCause     fetcher.FetchErrorCause
		wantRetryable bool
		wantHits      int32
	}{
		{"404 is not retried", http.StatusNotFound, 3, fetcher.ErrCauseRequest4xx, false, 1},
		{"403 is not retried", http.StatusForbidden, 3, fetcher.ErrCauseRequest4xx, false, 1},
		{"429 is retried", http.StatusTooManyRequests, 3, fetcher.ErrCauseRequestTooMany, true, 3},
		{"503 is retried", http.StatusServiceUnavailable, 2, fetcher.ErrCauseRequest5xx, true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			sink := &mockMetadataSink{}
			f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(tt.maxAttempts)})

			_, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0"))
			require.NotNil(t, err)

			var fetchErr *fetcher.FetchError
			require.True(t, errors.As(err, &fetchErr))
			assert.Equal(t, tt.wantCause, fetchErr.Cause)
			assert.Equal(t, tt.wantRetryable, fetchErr.IsRetryable())
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			assert.Equal(t, tt.wantHits, atomic.LoadInt32(&hits))

			require.Len(t, sink.fetchEvents, 1)
			assert.Equal(t, tt.status, sink.fetchEvents[0].httpStatus)
			assert.Equal(t, int(tt.wantHits)-1, sink.fetchEvents[0].retryCount)
		})
	}
}

func TestHTTPFetcher_Fetch_MaxAttemptsOverride(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(3)})

	param := fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0").WithMaxAttempts(1)
	_, err := f.Fetch(context.Background(), param)
	require.NotNil(t, err)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseRequest5xx, fetchErr.Cause)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	require.Len(t, sink.fetchEvents, 1)
	assert.Equal(t, 0, sink.fetchEvents[0].retryCount)
}

func TestHTTPFetcher_Fetch_MaxBodySize(t *testing.T) {
	var hits int32
	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(payload))
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{
		RetryParam:    createTestRetryParam(1),
		ResponseCache: cache.NewMemoryCache(10, time.Minute),
	})
	param := fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0").WithMaxBodySize(1000)

	result, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)
	assert.Equal(t, payload[:1000], string(result.Body()))
	assert.Equal(t, uint64(1000), result.SizeByte())
	assert.True(t, result.Truncated())

	// truncated bodies are not cached
	second, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)
	assert.False(t, second.FromCache())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	whole, err := f.Fetch(context.Background(), param.WithMaxBodySize(int64(len(payload))))
	require.Nil(t, err)
	assert.Equal(t, payload, string(whole.Body()))
	assert.False(t, whole.Truncated())
}

func TestHTTPFetcher_Fetch_AcceptHTTPErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{RetryParam: createTestRetryParam(3)})

	result, err := f.Fetch(context.Background(),
		fetcher.NewFetchParam(mustParseURL(t, server.URL+"/missing"), "TestBot/1.0").WithAcceptHTTPErrors(true))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNotFound, result.Code())

	result, err = f.Fetch(context.Background(),
		fetcher.NewFetchParam(mustParseURL(t, server.URL+"/down"), "TestBot/1.0").WithAcceptHTTPErrors(true))
	require.Nil(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, result.Code())
	assert.Equal(t, "down", string(result.Body()))

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHTTPFetcher_Fetch_RetriesUntilSuccess(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(3)})

	result, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0"))
	require.Nil(t, err)
	assert.Equal(t, "ok", string(result.Body()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))

	require.Len(t, sink.fetchEvents, 1)
	assert.Equal(t, 2, sink.fetchEvents[0].retryCount)
	assert.Empty(t, sink.errorEvents)
}

func TestHTTPFetcher_Fetch_ResponseCache(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("cached body"))
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	responseCache := cache.NewMemoryCache(10, time.Hour)
	f := newTestFetcher(sink, fetcher.HTTPParam{
		RetryParam:    createTestRetryParam(1),
		ResponseCache: responseCache,
	})
	param := fetcher.NewFetchParam(mustParseURL(t, server.URL+"/page"), "TestBot/1.0")

	first, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)
	assert.False(t, first.FromCache())

	second, err := f.Fetch(context.Background(), param)
	require.Nil(t, err)
	assert.True(t, second.FromCache())
	assert.Equal(t, "cached body", string(second.Body()))
	assert.Equal(t, "text/plain", second.ContentType())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, sink.fetchEvents[1].fromCache)

	_, err = f.Fetch(context.Background(), param.WithDisableCache(true))
	require.Nil(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	missing := fetcher.NewFetchParam(mustParseURL(t, server.URL+"/missing"), "TestBot/1.0").WithAcceptHTTPErrors(true)
	_, err = f.Fetch(context.Background(), missing)
	require.Nil(t, err)
	_, err = f.Fetch(context.Background(), missing)
	require.Nil(t, err)
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits), "non-2xx responses are not cached")
	assert.Equal(t, 1, responseCache.Size())
}

func TestHTTPFetcher_Fetch_Stream(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("streamed content"))
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{
		RetryParam:    createTestRetryParam(1),
		ResponseCache: cache.NewMemoryCache(10, time.Hour),
	})
	param := fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0").WithMode(fetcher.ModeStream)

	for i := 0; i < 2; i++ {
		result, err := f.Fetch(context.Background(), param)
		require.Nil(t, err)
		require.NotNil(t, result.Stream())
		assert.Nil(t, result.Body())

		data, readErr := io.ReadAll(result.Stream())
		require.NoError(t, readErr)
		require.NoError(t, result.Stream().Close())
		assert.Equal(t, "streamed content", string(data))
		assert.False(t, result.FromCache())
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHTTPFetcher_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{
		Timeout:    50 * time.Millisecond,
		RetryParam: createTestRetryParam(1),
	})

	_, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0"))
	require.NotNil(t, err)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseTimeout, fetchErr.Cause)
}

func TestHTTPFetcher_Fetch_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(3)})

	_, err := f.Fetch(ctx, fetcher.NewFetchParam(mustParseURL(t, server.URL), "TestBot/1.0"))
	require.NotNil(t, err)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseCanceled, fetchErr.Cause)
	assert.False(t, fetchErr.IsRetryable())
	assert.Equal(t, []metadata.ErrorCause{metadata.CauseCanceled}, sink.causes())
}

func TestHTTPFetcher_Fetch_RedirectLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	f := newTestFetcher(&metadata.NoopSink{}, fetcher.HTTPParam{RetryParam: createTestRetryParam(3)})

	_, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, server.URL+"/r"), "TestBot/1.0"))
	require.NotNil(t, err)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseRedirectLimitExceeded, fetchErr.Cause)
}

func TestHTTPFetcher_Fetch_NetworkFailureExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	sink := &mockMetadataSink{}
	f := newTestFetcher(sink, fetcher.HTTPParam{RetryParam: createTestRetryParam(2)})

	_, err := f.Fetch(context.Background(), fetcher.NewFetchParam(mustParseURL(t, target), "TestBot/1.0"))
	require.NotNil(t, err)

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseNetworkFailure, fetchErr.Cause)
	assert.True(t, fetchErr.IsRetryable())

	assert.Equal(t, []metadata.ErrorCause{
		metadata.CauseRetryFailure,
		metadata.CauseNetworkFailure,
	}, sink.causes())
	require.Len(t, sink.fetchEvents, 1)
	assert.Equal(t, 1, sink.fetchEvents[0].retryCount)
}

func TestFetchParam_Builders(t *testing.T) {
	u := mustParseURL(t, "https://example.com/a")
	headers := http.Header{"X-A": []string{"1"}}

	base := fetcher.NewFetchParam(u, "Bot/1")
	param := base.
		WithHeaders(headers).
		WithMode(fetcher.ModeStream).
		WithDisableCache(true).
		WithDisableDNSCache(true).
		WithAcceptHTTPErrors(true)

	headers.Set("X-A", "changed")

	assert.Equal(t, u, param.URL())
	assert.Equal(t, "Bot/1", param.UserAgent())
	assert.Equal(t, "1", param.Headers().Get("X-A"))
	assert.Equal(t, fetcher.ModeStream, param.Mode())
	assert.True(t, param.DisableCache())
	assert.True(t, param.DisableDNSCache())
	assert.True(t, param.AcceptHTTPErrors())

	assert.Equal(t, fetcher.ModeBuffered, base.Mode())
	assert.False(t, base.DisableCache())
	assert.Equal(t, "stream", fetcher.ModeStream.String())
	assert.Equal(t, "buffered", fetcher.ModeBuffered.String())
}

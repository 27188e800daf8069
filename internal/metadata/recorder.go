package metadata

import (
	"time"

	"github.com/rs/zerolog"
)

/*
Metadata Collected
- Fetch timestamps, durations and status codes
- robots.txt refreshes with the digest of the parsed text
- Classified errors with their attributes

Metadata is write-only.
No component may read metadata to influence scheduling decisions.
*/

/*
Recorder emits structured events through zerolog.
It must not:
- perform I/O decisions
- affect control flow
Ordering guarantees:
- Events are written in the order they are received by a single goroutine.
- No global ordering across goroutines is guaranteed.
*/
type Recorder struct {
	logger zerolog.Logger
}

func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	record := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errorString,
		observedAt:  observedAt,
		attrs:       attrs,
	}

	event := r.logger.Warn()
	if record.cause == CauseUnknown || record.cause == CauseInvalidConfig {
		event = r.logger.Error()
	}
	event = event.
		Time("observed_at", record.observedAt).
		Str("package", record.packageName).
		Str("action", record.action).
		Stringer("cause", record.cause)
	withAttrs(event, record.attrs).Msg(record.errorString)
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	fromCache bool,
) {
	e := FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		retryCount:  retryCount,
		fromCache:   fromCache,
	}

	r.logger.Debug().
		Str(string(AttrURL), e.fetchUrl).
		Int(string(AttrHTTPStatus), e.httpStatus).
		Dur("duration", e.duration).
		Str("content_type", e.contentType).
		Int("retry_count", e.retryCount).
		Bool("from_cache", e.fromCache).
		Msg("fetch")
}

func (r *Recorder) RecordRobots(
	origin string,
	httpStatus int,
	digest string,
	lineCount int,
	cached bool,
) {
	e := RobotsEvent{
		origin:     origin,
		httpStatus: httpStatus,
		digest:     digest,
		lineCount:  lineCount,
		cached:     cached,
	}

	r.logger.Info().
		Str(string(AttrOrigin), e.origin).
		Int(string(AttrHTTPStatus), e.httpStatus).
		Str("digest", e.digest).
		Int("lines", e.lineCount).
		Bool("cached", e.cached).
		Msg("robots.txt refreshed")
}

func withAttrs(event *zerolog.Event, attrs []Attribute) *zerolog.Event {
	for _, attr := range attrs {
		event = event.Str(string(attr.Key), attr.Value)
	}
	return event
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		fromCache bool,
	)

	RecordRobots(
		origin string,
		httpStatus int,
		digest string,
		lineCount int,
		cached bool,
	)
}

// NoopSink, struct that implements metadata.Sink but does nothing
// Scheduler (or Test) can decide whether to inject Recorder or NoopSink
// Purpose is to make metadata orthogonal

type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	fromCache bool,
) {
}

func (n *NoopSink) RecordRobots(
	origin string,
	httpStatus int,
	digest string,
	lineCount int,
	cached bool,
) {
}

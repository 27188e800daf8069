package scheduler

import (
	"fmt"

	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/pkg/failure"
)

type BotErrorCause string

const (
	// invalid bot identity or delay bounds; nothing was requested
	CauseConfiguration BotErrorCause = "configuration"
	// the request URL is not an absolute http(s) URL
	CauseInvalidURL BotErrorCause = "invalid url"
	// robots.txt disallows the path; no request was sent and no delay consumed
	CauseBlocked BotErrorCause = "blocked by robots.txt"
	// the required wait is longer than the configured maximum delay
	CauseDelayExceeded BotErrorCause = "wait time too long"
	// robots.txt answered with a status >= 500
	CauseRobotsServerError BotErrorCause = "robots.txt server error"
	// robots.txt contains a directive that cannot be normalized
	CauseRobotsInvalid BotErrorCause = "malformed robots.txt"
	// the content or robots.txt request failed in transport
	CauseTransport BotErrorCause = "transport failure"
	// the caller abandoned the request
	CauseCanceled BotErrorCause = "canceled"
)

// BotError is the single error type the scheduler surfaces. Callers switch on Cause.
type BotError struct {
	Message   string
	Cause     BotErrorCause
	Retryable bool
	// StatusCode is the robots.txt status for CauseRobotsServerError.
	StatusCode int
	// Err is the underlying fetcher, robots or config error, if any.
	Err error
}

func (e *BotError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bot error: %s (status %d), %s", e.Cause, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bot error: %s, %s", e.Cause, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Err
}

func (e *BotError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *BotError) IsRetryable() bool {
	return e.Retryable
}

// mapBotErrorToMetadataCause maps scheduler-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapBotErrorToMetadataCause(err *BotError) metadata.ErrorCause {
	switch err.Cause {
	case CauseConfiguration, CauseInvalidURL:
		return metadata.CauseInvalidConfig
	case CauseBlocked, CauseDelayExceeded:
		return metadata.CausePolicyDisallow
	case CauseRobotsServerError, CauseTransport:
		return metadata.CauseNetworkFailure
	case CauseRobotsInvalid:
		return metadata.CauseContentInvalid
	case CauseCanceled:
		return metadata.CauseCanceled
	default:
		return metadata.CauseUnknown
	}
}

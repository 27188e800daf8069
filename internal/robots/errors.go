package robots

import (
	"fmt"

	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseInvalidOrigin    RobotsErrorCause = "invalid origin"
	ErrCauseHttpFetchFailure RobotsErrorCause = "failed to fetch robots.txt"
	ErrCauseHttpServerError  RobotsErrorCause = "robots.txt answered with a server error"
	ErrCauseParseError       RobotsErrorCause = "malformed robots.txt"
)

type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
	// StatusCode is set for ErrCauseHttpServerError.
	StatusCode int
	// Err is the underlying transport or parse error.
	Err error
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s, %s", e.Cause, e.Message)
}

func (e *RobotsError) Unwrap() error {
	return e.Err
}

func (e *RobotsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}

// mapRobotsErrorToMetadataCause maps robots-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRobotsErrorToMetadataCause(err *RobotsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseHttpFetchFailure, ErrCauseHttpServerError:
		return metadata.CauseNetworkFailure
	case ErrCauseParseError:
		return metadata.CauseContentInvalid
	case ErrCauseInvalidOrigin:
		return metadata.CauseInvalidConfig
	default:
		return metadata.CauseUnknown
	}
}

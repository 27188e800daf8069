package render

import (
	"fmt"

	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/pkg/failure"
)

type RenderErrorCause string

const (
	ErrCauseParseFailure      RenderErrorCause = "html parse failed"
	ErrCauseConversionFailure RenderErrorCause = "conversion failed"
)

type RenderError struct {
	Message   string
	Retryable bool
	Cause     RenderErrorCause
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error: %s, %s", e.Cause, e.Message)
}

func (e *RenderError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func mapRenderErrorToMetadataCause(err *RenderError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseParseFailure, ErrCauseConversionFailure:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}

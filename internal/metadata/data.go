package metadata

import (
	"time"
)

type FetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	fromCache   bool
}

type RobotsEvent struct {
	origin     string
	httpStatus int
	digest     string
	lineCount  int
	cached     bool
}

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry or abort decisions.
	 - Packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning:
  - The failure does not map cleanly to any known category.

# CauseNetworkFailure

Meaning:
  - Failure caused by network transport or remote availability.

Examples:
  - TCP timeouts
  - DNS resolution failures
  - robots.txt answered with 5xx

# CausePolicyDisallow

Meaning:
  - The request was refused by an explicit policy.

Examples:
  - robots.txt disallow
  - required crawl delay longer than the configured maximum

# CauseContentInvalid

Meaning:
  - Content was fetched but could not be processed.

Examples:
  - malformed robots.txt directive
  - unreadable response body

# CauseRetryFailure

Meaning:
  - All transport retry attempts were used up.

# CauseInvalidConfig

Meaning:
  - The bot was configured with values that cannot be used.

# CauseCanceled

Meaning:
  - The caller abandoned the request.
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseRetryFailure
	CauseInvalidConfig
	CauseCanceled
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseRetryFailure:
		return "retry_failure"
	case CauseInvalidConfig:
		return "invalid_config"
	case CauseCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

type ErrorRecord struct {
	packageName string
	action      string
	cause       ErrorCause
	errorString string
	observedAt  time.Time
	attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrURL        AttributeKey = "url"
	AttrOrigin     AttributeKey = "origin"
	AttrPath       AttributeKey = "path"
	AttrAgent      AttributeKey = "agent"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrRequestID  AttributeKey = "request_id"
	AttrDelay      AttributeKey = "delay"
	AttrMessage    AttributeKey = "message"
)

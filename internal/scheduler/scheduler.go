package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rohmanhakim/politebot/internal/config"
	"github.com/rohmanhakim/politebot/internal/fetcher"
	"github.com/rohmanhakim/politebot/internal/fetcher/cache"
	"github.com/rohmanhakim/politebot/internal/metadata"
	"github.com/rohmanhakim/politebot/internal/origin"
	"github.com/rohmanhakim/politebot/internal/robots"
	"github.com/rohmanhakim/politebot/pkg/failure"
	"github.com/rohmanhakim/politebot/pkg/limiter"
	"github.com/rohmanhakim/politebot/pkg/retry"
	"github.com/rohmanhakim/politebot/pkg/timeutil"
	"github.com/rohmanhakim/politebot/pkg/urlutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

/*
 Scheduler is the politeness gate in front of the fetcher.

 For every request it:
 - resolves the origin and its robots.txt rules (refreshing them once robotsTTL has passed)
 - refuses paths the rules disallow for the bot name
 - waits until max(crawl-delay, minimum delay) has passed since the previous
   request to the same origin, or refuses when that wait is longer than the maximum delay
 - records the dispatch time and hands the request to the fetcher

 Guarantees:
 - Requests to one origin pass the delay gate one at a time; different origins never wait on each other.
 - At most one robots.txt fetch per origin is in flight. Concurrent callers share its result.
 - A refused or canceled request never moves the origin's last request time.

 Metadata emission is observational only and MUST NOT influence
 scheduling decisions.
*/
type Scheduler struct {
	metadataSink   metadata.MetadataSink
	logger         zerolog.Logger
	fetcher        fetcher.Fetcher
	robotsFetcher  *robots.RobotsFetcher
	delayPolicy    *limiter.DelayPolicy
	origins        *origin.Store
	refreshGroup   singleflight.Group
	botName        string
	userAgent      string
	robotsTTL      time.Duration
	refreshTimeout time.Duration
	now            func() time.Time
}

// NewScheduler builds a scheduler with the default HTTP fetcher. Unless
// caching is disabled, buffered 2xx responses are kept in an in-memory cache.
func NewScheduler(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
	logger zerolog.Logger,
) (*Scheduler, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	param := fetcher.HTTPParam{
		Timeout: cfg.Timeout(),
		RetryParam: retry.NewRetryParam(
			100*time.Millisecond,
			cfg.RandomSeed(),
			cfg.MaxAttempt(),
			timeutil.NewBackoffParam(
				cfg.BackoffInitialDuration(),
				cfg.BackoffMultiplier(),
				cfg.BackoffMaxDuration(),
			),
		),
		DNSCacheTTL: cfg.DNSCacheTTL(),
	}
	if !cfg.DisableCaching() {
		param.ResponseCache = cache.NewMemoryCache(cfg.ResponseCacheSize(), cfg.ResponseCacheTTL())
	}

	httpFetcher := fetcher.NewHTTPFetcher(metadataSink, logger, param)
	return NewSchedulerWithDeps(cfg, httpFetcher, metadataSink, logger)
}

// NewSchedulerWithDeps builds a scheduler around an existing fetcher.
// This is useful for testing.
func NewSchedulerWithDeps(
	cfg config.Config,
	f fetcher.Fetcher,
	metadataSink metadata.MetadataSink,
	logger zerolog.Logger,
) (*Scheduler, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &BotError{
			Message: "a fetcher is required",
			Cause:   CauseConfiguration,
		}
	}
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}

	refreshTimeout := time.Duration(cfg.MaxAttempt()) * (cfg.Timeout() + cfg.BackoffMaxDuration())

	return &Scheduler{
		metadataSink:   metadataSink,
		logger:         logger.With().Str("component", "scheduler").Str("bot", cfg.BotName()).Logger(),
		fetcher:        f,
		robotsFetcher:  robots.NewRobotsFetcher(metadataSink, f, cfg.UserAgent()),
		delayPolicy:    limiter.NewDelayPolicy(cfg.MinimumDelay(), cfg.MaximumDelay(), cfg.Jitter(), cfg.RandomSeed()),
		origins:        origin.NewStore(cfg.MaxOrigins()),
		botName:        cfg.BotName(),
		userAgent:      cfg.UserAgent(),
		robotsTTL:      cfg.RobotsTTL(),
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}, nil
}

func validate(cfg config.Config) error {
	if _, err := cfg.Build(); err != nil {
		return &BotError{
			Message: err.Error(),
			Cause:   CauseConfiguration,
			Err:     err,
		}
	}
	return nil
}

func (s *Scheduler) UserAgent() string {
	return s.userAgent
}

func (s *Scheduler) BotName() string {
	return s.botName
}

// Request fetches rawURL once robots.txt and the origin's crawl delay allow it.
// The fetcher's result is returned unchanged. A stream result must be closed
// by the caller.
func (s *Scheduler) Request(ctx context.Context, rawURL string, opts RequestOptions) (fetcher.FetchResult, error) {
	callerMethod := "Scheduler.Request"
	logger := s.requestLogger(rawURL)

	target, originKey, path, botErr := s.resolve(rawURL)
	if botErr != nil {
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}
	entry := s.origins.Get(originKey)
	defer s.origins.Done(entry)

	ruleSet, botErr := s.ruleSetFor(ctx, entry, logger)
	if botErr != nil {
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}

	allowed, err := ruleSet.IsPathAllowed(path, s.botName)
	if err != nil {
		botErr = &BotError{
			Message: fmt.Sprintf("cannot evaluate %q: %v", path, err),
			Cause:   CauseInvalidURL,
			Err:     err,
		}
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}
	if !allowed {
		botErr = &BotError{
			Message: fmt.Sprintf("%s is disallowed for %s", path, s.botName),
			Cause:   CauseBlocked,
		}
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}

	crawlDelay, declared := ruleSet.Delay(s.botName)
	effective := s.delayPolicy.EffectiveDelay(crawlDelay, declared)

	if err := entry.Acquire(ctx); err != nil {
		botErr = canceled(err)
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}

	wait, ok := s.delayPolicy.ResolveWait(effective, entry.LastRequestAt(), s.now())
	if !ok {
		entry.Release()
		botErr = &BotError{
			Message:   fmt.Sprintf("must wait %v before requesting %s, maximum is %v", wait, originKey, s.delayPolicy.Maximum()),
			Cause:     CauseDelayExceeded,
			Retryable: true,
		}
		s.recordError(callerMethod, rawURL, botErr, metadata.NewAttr(metadata.AttrDelay, wait.String()))
		return fetcher.FetchResult{}, botErr
	}

	if wait > 0 {
		logger.Debug().Dur("wait", wait).Dur("effective_delay", effective).Msg("waiting for origin")
	}
	if err := timeutil.Sleep(ctx, wait); err != nil {
		entry.Release()
		botErr = canceled(err)
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}
	entry.MarkRequest(s.now(), effective+s.delayPolicy.Jitter())
	entry.Release()

	// a retry inside the fetcher would reach the origin without passing the delay gate
	param := fetcher.NewFetchParam(target, s.userAgent).
		WithHeaders(opts.Headers).
		WithMode(opts.Mode).
		WithAcceptHTTPErrors(opts.AcceptHTTPErrors).
		WithDisableCache(opts.DisableCache).
		WithDisableDNSCache(opts.DisableDNSCache).
		WithMaxAttempts(1)

	result, fetchErr := s.fetcher.Fetch(ctx, param)
	if fetchErr != nil {
		if ctx.Err() != nil {
			botErr = canceled(ctx.Err())
			botErr.Err = fetchErr
		} else {
			botErr = transportError(fetchErr)
		}
		s.recordError(callerMethod, rawURL, botErr)
		return fetcher.FetchResult{}, botErr
	}

	logger.Debug().
		Int("status", result.Code()).
		Bool("from_cache", result.FromCache()).
		Str("mode", opts.Mode.String()).
		Msg("request dispatched")
	return result, nil
}

// Check reports what Request would decide for rawURL right now without
// requesting it or touching the origin's last request time. It may still
// refresh the origin's robots.txt.
func (s *Scheduler) Check(ctx context.Context, rawURL string) (Decision, error) {
	callerMethod := "Scheduler.Check"
	logger := s.requestLogger(rawURL)

	_, originKey, path, botErr := s.resolve(rawURL)
	if botErr != nil {
		s.recordError(callerMethod, rawURL, botErr)
		return Decision{}, botErr
	}
	entry := s.origins.Get(originKey)
	defer s.origins.Done(entry)

	ruleSet, botErr := s.ruleSetFor(ctx, entry, logger)
	if botErr != nil {
		s.recordError(callerMethod, rawURL, botErr)
		return Decision{}, botErr
	}

	evaluated, err := ruleSet.Evaluate(path, s.botName)
	if err != nil {
		botErr = &BotError{
			Message: fmt.Sprintf("cannot evaluate %q: %v", path, err),
			Cause:   CauseInvalidURL,
			Err:     err,
		}
		s.recordError(callerMethod, rawURL, botErr)
		return Decision{}, botErr
	}

	crawlDelay, declared := ruleSet.Delay(s.botName)
	effective := s.delayPolicy.EffectiveDelay(crawlDelay, declared)
	wait, ok := s.delayPolicy.ResolveWait(effective, entry.LastRequestAt(), s.now())

	return Decision{
		URL:            rawURL,
		Origin:         originKey,
		Path:           path,
		Allowed:        evaluated.Allowed,
		Reason:         evaluated.Reason,
		Line:           evaluated.Line,
		CrawlDelay:     evaluated.CrawlDelay,
		EffectiveDelay: effective,
		Wait:           wait,
		WithinMaximum:  ok,
		RobotsDigest:   ruleSet.Digest(),
		Sitemaps:       ruleSet.Sitemaps(),
	}, nil
}

func (s *Scheduler) requestLogger(rawURL string) zerolog.Logger {
	return s.logger.With().
		Str(string(metadata.AttrRequestID), uuid.NewString()).
		Str(string(metadata.AttrURL), rawURL).
		Logger()
}

// resolve parses rawURL into the URL to fetch, its origin key and the path
// robots.txt is evaluated against.
func (s *Scheduler) resolve(rawURL string) (url.URL, string, string, *BotError) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return url.URL{}, "", "", &BotError{
			Message: fmt.Sprintf("cannot parse %q", rawURL),
			Cause:   CauseInvalidURL,
			Err:     err,
		}
	}

	originKey, err := urlutil.Origin(*parsed)
	if err != nil {
		return url.URL{}, "", "", &BotError{
			Message: err.Error(),
			Cause:   CauseInvalidURL,
			Err:     err,
		}
	}

	return *parsed, originKey, urlutil.RequestPath(*parsed), nil
}

// ruleSetFor returns the cached rules of entry, refreshing them when absent
// or older than robotsTTL. The refresh runs detached from ctx so that one
// caller giving up does not fail the others waiting on it.
func (s *Scheduler) ruleSetFor(ctx context.Context, entry *origin.Entry, logger zerolog.Logger) (*robots.RuleSet, *BotError) {
	if ruleSet, fresh := entry.RuleSet(s.now(), s.robotsTTL); fresh {
		return ruleSet, nil
	}

	originKey := entry.Origin()
	resultCh := s.refreshGroup.DoChan(originKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		defer cancel()

		logger.Debug().Str(string(metadata.AttrOrigin), originKey).Msg("refreshing robots.txt")

		// hold the entry for the whole refresh; the caller that started it may give up first
		target := s.origins.Get(originKey)
		defer s.origins.Done(target)

		result, robotsErr := s.robotsFetcher.Fetch(fetchCtx, originKey)
		if robotsErr != nil {
			if robotsErr.Cause == robots.ErrCauseHttpServerError {
				target.ClearRuleSet()
			}
			return nil, robotsErr
		}
		if result.Cacheable {
			target.StoreRuleSet(result.RuleSet, s.now())
		}
		return result.RuleSet, nil
	})

	select {
	case <-ctx.Done():
		return nil, canceled(ctx.Err())
	case res := <-resultCh:
		if res.Err != nil {
			var robotsErr *robots.RobotsError
			if errors.As(res.Err, &robotsErr) {
				return nil, fromRobotsError(robotsErr)
			}
			return nil, &BotError{
				Message:   res.Err.Error(),
				Cause:     CauseTransport,
				Retryable: true,
				Err:       res.Err,
			}
		}
		return res.Val.(*robots.RuleSet), nil
	}
}

func fromRobotsError(err *robots.RobotsError) *BotError {
	switch err.Cause {
	case robots.ErrCauseHttpServerError:
		return &BotError{
			Message:    err.Message,
			Cause:      CauseRobotsServerError,
			StatusCode: err.StatusCode,
			Retryable:  true,
			Err:        err,
		}
	case robots.ErrCauseParseError:
		return &BotError{
			Message: err.Message,
			Cause:   CauseRobotsInvalid,
			Err:     err,
		}
	case robots.ErrCauseInvalidOrigin:
		return &BotError{
			Message: err.Message,
			Cause:   CauseInvalidURL,
			Err:     err,
		}
	default:
		return &BotError{
			Message:   err.Message,
			Cause:     CauseTransport,
			Retryable: err.Retryable,
			Err:       err,
		}
	}
}

func canceled(err error) *BotError {
	return &BotError{
		Message: "request abandoned before dispatch",
		Cause:   CauseCanceled,
		Err:     err,
	}
}

// transportError wraps a content fetch failure. An HTTP error status
// surfaces here only when the caller did not accept HTTP errors.
func transportError(err failure.ClassifiedError) *BotError {
	botErr := &BotError{
		Message:   err.Error(),
		Cause:     CauseTransport,
		Retryable: err.Severity() == failure.SeverityRecoverable,
		Err:       err,
	}
	var fetchErr *fetcher.FetchError
	if errors.As(err, &fetchErr) {
		botErr.StatusCode = fetchErr.StatusCode
	}
	return botErr
}

func (s *Scheduler) recordError(callerMethod, rawURL string, err *BotError, extra ...metadata.Attribute) {
	attrs := []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, rawURL),
		metadata.NewAttr(metadata.AttrAgent, s.botName),
	}
	if err.StatusCode != 0 {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrHTTPStatus, strconv.Itoa(err.StatusCode)))
	}
	attrs = append(attrs, extra...)
	s.metadataSink.RecordError(
		s.now(),
		"scheduler",
		callerMethod,
		mapBotErrorToMetadataCause(err),
		err.Error(),
		attrs,
	)
}

package robots

import "time"

// Key is a recognized robots.txt directive name, lowercased.
type Key string

const (
	KeyUserAgent  Key = "user-agent"
	KeyAllow      Key = "allow"
	KeyDisallow   Key = "disallow"
	KeyCrawlDelay Key = "crawl-delay"
)

func parseKey(raw string) (Key, bool) {
	switch k := Key(raw); k {
	case KeyUserAgent, KeyAllow, KeyDisallow, KeyCrawlDelay:
		return k, true
	default:
		return "", false
	}
}

// Specificity ranks how precisely a user-agent block names the requesting agent.
type Specificity int

const (
	NotSpecified Specificity = iota
	CatchAll
	NamedMatch
)

func (s Specificity) String() string {
	switch s {
	case CatchAll:
		return "catch_all"
	case NamedMatch:
		return "named_match"
	default:
		return "not_specified"
	}
}

// Verdict is the outcome of evaluating a single allow/disallow line.
type Verdict int

const (
	NoVerdict Verdict = iota
	Allowed
	Disallowed
)

type DecisionReason string

const (
	AllowedByRobots    DecisionReason = "allowed_by_robots"
	DisallowedByRobots DecisionReason = "disallowed_by_robots"
	NoMatchingRules    DecisionReason = "no_matching_rules"
	EmptyRuleSet       DecisionReason = "empty_rule_set"
)

// Decision explains an IsPathAllowed outcome.
type Decision struct {
	Allowed bool

	// Why this decision was made (for logging/debugging)
	Reason DecisionReason

	// Specificity and Priority of the winning verdict; zero when none matched.
	Specificity Specificity
	Priority    int

	// Sequence index of the winning line, -1 when none matched.
	Line int

	// Crawl delay declared for the agent, if any.
	CrawlDelay *time.Duration
}

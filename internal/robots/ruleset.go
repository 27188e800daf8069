package robots

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rohmanhakim/politebot/pkg/hashutil"
	"github.com/rohmanhakim/politebot/pkg/timeutil"
)

// MaxSize is the number of robots.txt bytes parsed; the rest is ignored (RFC 9309 §2.5).
const MaxSize = 500 * 1024

const allowAllText = "User-agent: *\nAllow: /"

// RuleSet is a parsed robots.txt. It is immutable and safe for concurrent use.
type RuleSet struct {
	lines    []Line
	sitemaps []string
	digest   string
}

// Parse builds a RuleSet from raw robots.txt text.
//
// Comments are stripped, CRLF and CR become LF, each line is split on its
// first ":" and only user-agent, allow, disallow and crawl-delay directives
// are kept. Sitemap URLs are collected separately. A directive whose path
// cannot be normalized fails the whole parse with ErrMalformedPath.
func Parse(text string) (*RuleSet, error) {
	text = truncate(text, MaxSize)

	rs := &RuleSet{
		digest: digestOf(text),
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	for _, raw := range strings.Split(text, "\n") {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		rawKey, value, _ := strings.Cut(raw, ":")
		rawKey = strings.ToLower(strings.TrimSpace(rawKey))
		if rawKey == "" {
			continue
		}

		if rawKey == "sitemap" {
			if v := strings.TrimSpace(value); v != "" {
				rs.sitemaps = append(rs.sitemaps, v)
			}
			continue
		}

		key, ok := parseKey(rawKey)
		if !ok {
			continue
		}

		line, err := NewLine(key, value, len(rs.lines))
		if err != nil {
			return nil, err
		}
		rs.lines = append(rs.lines, line)
	}

	return rs, nil
}

// AllowAll returns the RuleSet equivalent to "User-agent: *\nAllow: /".
func AllowAll() *RuleSet {
	rs, err := Parse(allowAllText)
	if err != nil {
		panic(err)
	}
	return rs
}

// Lines returns a copy of the directives in file order.
func (rs *RuleSet) Lines() []Line {
	out := make([]Line, len(rs.lines))
	copy(out, rs.lines)
	return out
}

func (rs *RuleSet) Len() int {
	return len(rs.lines)
}

func (rs *RuleSet) Sitemaps() []string {
	out := make([]string, len(rs.sitemaps))
	copy(out, rs.sitemaps)
	return out
}

// Digest is the hex blake3 hash of the parsed source text.
func (rs *RuleSet) Digest() string {
	return rs.digest
}

// IsAdditionalUserAgent reports whether line i is a user-agent line directly
// following another user-agent line, so both share the directives below them.
func (rs *RuleSet) IsAdditionalUserAgent(i int) bool {
	if i <= 0 || i >= len(rs.lines) {
		return false
	}
	return rs.lines[i].key == KeyUserAgent && rs.lines[i-1].key == KeyUserAgent
}

// IsPathAllowed reports whether agent may fetch path (path plus optional query).
func (rs *RuleSet) IsPathAllowed(path, agent string) (bool, error) {
	d, err := rs.Evaluate(path, agent)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

type verdictAt struct {
	verdict Verdict
	line    int
}

// Evaluate applies the RFC 9309 precedence: the most specific user-agent
// level with any matching directive wins, then the longest directive, then
// the first one in file order. No match at all means allowed.
func (rs *RuleSet) Evaluate(path, agent string) (Decision, error) {
	crawlDelay := rs.crawlDelayPtr(agent)
	if len(rs.lines) == 0 {
		return Decision{Allowed: true, Reason: EmptyRuleSet, Line: -1, CrawlDelay: crawlDelay}, nil
	}

	normalized, err := NormalizePath(path)
	if err != nil {
		return Decision{}, err
	}

	verdicts := make(map[Specificity]map[int]verdictAt)
	rs.walk(agent, func(spec Specificity, l *Line) {
		if l.key != KeyAllow && l.key != KeyDisallow {
			return
		}
		v := l.verdictFor(normalized)
		if v == NoVerdict {
			return
		}
		byPriority, ok := verdicts[spec]
		if !ok {
			byPriority = make(map[int]verdictAt)
			verdicts[spec] = byPriority
		}
		if _, seen := byPriority[l.priority]; !seen {
			byPriority[l.priority] = verdictAt{verdict: v, line: l.index}
		}
	})

	for _, spec := range []Specificity{NamedMatch, CatchAll} {
		byPriority, ok := verdicts[spec]
		if !ok {
			continue
		}

		best := -1
		for priority := range byPriority {
			if priority > best {
				best = priority
			}
		}
		winner := byPriority[best]

		decision := Decision{
			Allowed:     winner.verdict == Allowed,
			Reason:      AllowedByRobots,
			Specificity: spec,
			Priority:    best,
			Line:        winner.line,
			CrawlDelay:  crawlDelay,
		}
		if !decision.Allowed {
			decision.Reason = DisallowedByRobots
		}
		return decision, nil
	}

	return Decision{Allowed: true, Reason: NoMatchingRules, Line: -1, CrawlDelay: crawlDelay}, nil
}

// Delay returns the crawl-delay that applies to agent: the last value
// declared at the most specific user-agent level that declared one.
func (rs *RuleSet) Delay(agent string) (time.Duration, bool) {
	delays := make(map[Specificity]time.Duration)
	rs.walk(agent, func(spec Specificity, l *Line) {
		if l.key != KeyCrawlDelay || !l.hasDelay {
			return
		}
		delays[spec] = l.delay
	})

	for _, spec := range []Specificity{NamedMatch, CatchAll} {
		if d, ok := delays[spec]; ok {
			return d, true
		}
	}
	return 0, false
}

func (rs *RuleSet) crawlDelayPtr(agent string) *time.Duration {
	if d, ok := rs.Delay(agent); ok {
		return timeutil.DurationPtr(d)
	}
	return nil
}

// walk visits every non user-agent line together with the specificity of the
// user-agent block it belongs to. Lines outside any block naming agent are skipped.
func (rs *RuleSet) walk(agent string, visit func(spec Specificity, l *Line)) {
	current := NotSpecified
	for i := range rs.lines {
		l := &rs.lines[i]
		if l.key == KeyUserAgent {
			own := l.OwnUserAgent(agent)
			if rs.IsAdditionalUserAgent(i) {
				if own > current {
					current = own
				}
			} else {
				current = own
			}
			continue
		}
		if current == NotSpecified {
			continue
		}
		visit(current, l)
	}
}

// truncate cuts text to at most limit bytes without splitting a rune.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func digestOf(text string) string {
	digest, err := hashutil.HashBytes([]byte(text), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return ""
	}
	return digest
}

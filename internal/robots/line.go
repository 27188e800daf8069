package robots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rohmanhakim/politebot/internal/build"
)

// Line is one parsed robots.txt directive. Lines are immutable once built.
type Line struct {
	key      Key
	rawValue string
	// normalized path for allow/disallow, the trimmed raw value otherwise
	value    string
	strict   bool
	priority int
	delay    time.Duration
	hasDelay bool
	index    int
	matcher  matcher
}

// NewLine builds the directive key: value found at position index in its file.
func NewLine(key Key, value string, index int) (Line, error) {
	value = strings.TrimSpace(value)
	line := Line{
		key:      key,
		rawValue: value,
		value:    value,
		index:    index,
	}

	switch key {
	case KeyCrawlDelay:
		line.delay, line.hasDelay = parseCrawlDelay(value)

	case KeyAllow, KeyDisallow:
		pattern := value
		if strings.HasSuffix(pattern, "$") {
			pattern = pattern[:len(pattern)-1]
			line.strict = true
		}

		normalized, err := NormalizePath(pattern)
		if err != nil {
			return Line{}, fmt.Errorf("line %d %s: %w", index, key, err)
		}
		line.value = normalized
		line.priority = len(normalized)
		line.matcher = compilePattern(normalized, line.strict)
	}

	return line, nil
}

// parseCrawlDelay reads the leading integer of value as seconds.
// "5", "5.5" and "5s" all mean five seconds; a value without leading digits is ignored.
func parseCrawlDelay(value string) (time.Duration, bool) {
	end := 0
	if end < len(value) && (value[end] == '+' || value[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}

	seconds, err := strconv.ParseInt(value[:end], 10, 64)
	if err != nil || seconds > int64(maxCrawlDelay/time.Second) || seconds < -int64(maxCrawlDelay/time.Second) {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// keeps seconds*time.Second from overflowing
const maxCrawlDelay = 24 * 365 * time.Hour

func (l Line) Key() Key {
	return l.key
}

func (l Line) RawValue() string {
	return l.rawValue
}

// Value is the normalized path for allow/disallow lines.
func (l Line) Value() string {
	return l.value
}

// Strict reports whether the directive ended with "$".
func (l Line) Strict() bool {
	return l.strict
}

// Priority is the byte length of the normalized directive path.
func (l Line) Priority() int {
	return l.priority
}

func (l Line) Delay() (time.Duration, bool) {
	return l.delay, l.hasDelay
}

func (l Line) Index() int {
	return l.index
}

// OwnUserAgent reports how specifically a user-agent line names agent.
func (l Line) OwnUserAgent(agent string) Specificity {
	if l.key != KeyUserAgent {
		return NotSpecified
	}
	if l.value == "*" {
		return CatchAll
	}
	if l.value == "" {
		return NotSpecified
	}
	if strings.EqualFold(l.value, agent) ||
		strings.Contains(strings.ToLower(l.value), build.LibraryToken) {
		return NamedMatch
	}
	return NotSpecified
}

// PathVerdict evaluates path against an allow/disallow line.
// Lines of any other kind answer Disallowed; an empty directive never matches.
func (l Line) PathVerdict(path string) (Verdict, error) {
	if l.key != KeyAllow && l.key != KeyDisallow {
		return Disallowed, nil
	}
	if l.value == "" {
		return NoVerdict, nil
	}

	normalized, err := NormalizePath(path)
	if err != nil {
		return NoVerdict, err
	}
	return l.verdictFor(normalized), nil
}

// verdictFor expects an already normalized path.
func (l Line) verdictFor(normalized string) Verdict {
	if l.value == "" || !l.matcher.Match(normalized) {
		return NoVerdict
	}
	if l.key == KeyAllow {
		return Allowed
	}
	return Disallowed
}

package robots

import "strings"

// matcher is a compiled allow/disallow pattern.
//
// "*" matches any run of characters and the pattern is anchored at the start
// of the path. A strict pattern (declared with a trailing "$") has to consume
// the whole path. A non-strict pattern matches as a prefix, but may not stop
// in the middle of a word.
type matcher struct {
	pattern string
	// literal pieces between "*" tokens; consecutive "*" are collapsed
	pieces []string
	strict bool
}

func compilePattern(pattern string, strict bool) matcher {
	raw := strings.Split(pattern, "*")
	pieces := make([]string, 0, len(raw))
	for i, p := range raw {
		// keep the leading and trailing piece even when empty
		if p == "" && i != 0 && i != len(raw)-1 {
			continue
		}
		pieces = append(pieces, p)
	}

	return matcher{
		pattern: pattern,
		pieces:  pieces,
		strict:  strict,
	}
}

func (m matcher) Match(path string) bool {
	head := m.pieces[0]
	if !strings.HasPrefix(path, head) {
		return false
	}
	rest := path[len(head):]
	if len(m.pieces) == 1 {
		return m.tailOK(rest)
	}

	// Middle pieces take their leftmost occurrence: an earlier placement
	// leaves a longer remainder, so it never rules out a later piece.
	last := len(m.pieces) - 1
	for _, piece := range m.pieces[1:last] {
		j := strings.Index(rest, piece)
		if j < 0 {
			return false
		}
		rest = rest[j+len(piece):]
	}

	tail := m.pieces[last]
	if tail == "" {
		// trailing "*" swallows whatever is left
		return true
	}
	if m.strict {
		return strings.HasSuffix(rest, tail)
	}
	for offset := 0; offset <= len(rest)-len(tail); {
		j := strings.Index(rest[offset:], tail)
		if j < 0 {
			return false
		}
		end := offset + j + len(tail)
		if m.tailOK(rest[end:]) {
			return true
		}
		offset += j + 1
	}
	return false
}

// tailOK decides whether the unmatched remainder of the path is acceptable.
func (m matcher) tailOK(rest string) bool {
	if rest == "" {
		return true
	}
	if m.strict {
		return false
	}
	return !m.endsInsideWord(rest[0])
}

// endsInsideWord reports whether stopping the match before next would split a
// word. So "/admin" does not cover "/administrator" but still
// covers "/admin/users" and "/admin.php".
func (m matcher) endsInsideWord(next byte) bool {
	n := len(m.pattern)
	if n == 0 {
		return false
	}
	// a trailing %XX escape is a delimiter
	if n >= 3 && m.pattern[n-3] == '%' {
		if _, ok := unhexAt(m.pattern, n-3); ok {
			return false
		}
	}
	return isWordByte(m.pattern[n-1]) && isWordByte(next)
}

func isWordByte(c byte) bool {
	return isAlnum(c) || c == '_'
}

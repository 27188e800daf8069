package robots

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var ErrMalformedPath = errors.New("malformed path")

const upperhex = "0123456789ABCDEF"

// NormalizePath canonicalizes a path with an optional query so that directive
// values and request paths compare as literal strings.
//
// The path is percent-decoded (escapes of reserved characters and of "%" are
// kept), NFC-composed, stripped of dot segments and re-encoded with the URL
// path percent-encode set. Query parameters keep their source order and are
// re-serialized as application/x-www-form-urlencoded. The fragment is dropped.
// A missing leading "/" stays missing.
//
// Malformed percent-encoding or invalid UTF-8 in the path is reported as
// ErrMalformedPath.
func NormalizePath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: invalid utf-8 in %q", ErrMalformedPath, raw)
	}

	hasStartSlash := raw[0] == '/'

	rest, _, _ := strings.Cut(raw, "#")
	path, query, _ := strings.Cut(rest, "?")

	path = strings.ReplaceAll(path, "\\", "/")
	if !hasStartSlash {
		path = "/" + path
	}

	decoded, err := decodePath(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v in %q", ErrMalformedPath, err, raw)
	}

	path = encodePath(removeDotSegments(norm.NFC.String(decoded)))
	if !hasStartSlash {
		path = path[1:]
	}

	if q := normalizeQuery(query); q != "" {
		return path + "?" + q, nil
	}
	return path, nil
}

// decodePath decodes percent escapes into UTF-8, leaving escapes that stand
// for reserved characters untouched (uppercased).
func decodePath(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		if s[i] != '%' {
			b.WriteByte(s[i])
			i++
			continue
		}

		first, ok := unhexAt(s, i)
		if !ok {
			return "", fmt.Errorf("bad escape at offset %d", i)
		}

		if first < utf8.RuneSelf {
			if keepEscaped(first) {
				b.WriteByte('%')
				b.WriteByte(upperhex[first>>4])
				b.WriteByte(upperhex[first&0x0f])
			} else {
				b.WriteByte(first)
			}
			i += 3
			continue
		}

		n := utf8SequenceLength(first)
		if n == 0 {
			return "", fmt.Errorf("invalid utf-8 lead byte at offset %d", i)
		}

		seq := make([]byte, 0, n)
		seq = append(seq, first)
		for k := 1; k < n; k++ {
			next, ok := unhexAt(s, i+3*k)
			if !ok || next&0xc0 != 0x80 {
				return "", fmt.Errorf("truncated utf-8 sequence at offset %d", i)
			}
			seq = append(seq, next)
		}
		if !utf8.Valid(seq) {
			return "", fmt.Errorf("invalid utf-8 sequence at offset %d", i)
		}

		b.Write(seq)
		i += 3 * n
	}

	return b.String(), nil
}

// keepEscaped reports whether an escaped byte must stay escaped after decoding.
func keepEscaped(c byte) bool {
	return strings.IndexByte(";/?:@&=+$,#%", c) >= 0
}

func encodePath(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s):
			b.WriteByte('%')
			b.WriteByte(upperASCII(s[i+1]))
			b.WriteByte(upperASCII(s[i+2]))
			i += 2
		case inPathEncodeSet(c):
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func inPathEncodeSet(c byte) bool {
	if c <= 0x20 || c >= 0x7f {
		return true
	}
	switch c {
	case '"', '#', '<', '>', '?', '`', '{', '}':
		return true
	}
	return false
}

// removeDotSegments resolves "." and ".." segments of an absolute path.
func removeDotSegments(path string) string {
	segments := strings.Split(path[1:], "/")
	out := make([]string, 0, len(segments))

	for i, seg := range segments {
		last := i == len(segments)-1
		switch seg {
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
			if last {
				out = append(out, "")
			}
		case ".":
			if last {
				out = append(out, "")
			}
		default:
			out = append(out, seg)
		}
	}

	return "/" + strings.Join(out, "/")
}

// normalizeQuery parses query like a form body and serializes it again.
// Empty parameters are dropped; a key without "=" gets an empty value.
func normalizeQuery(query string) string {
	if query == "" {
		return ""
	}

	var b strings.Builder
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")

		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(formEncode(norm.NFC.String(formDecode(name))))
		b.WriteByte('=')
		b.WriteString(formEncode(norm.NFC.String(formDecode(value))))
	}

	return b.String()
}

// formDecode is lenient: stray "%" stays literal and invalid UTF-8 becomes U+FFFD.
func formDecode(s string) string {
	s = strings.ReplaceAll(s, "+", " ")

	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if v, ok := unhexAt(s, i); ok {
				buf = append(buf, v)
				i += 2
				continue
			}
		}
		buf = append(buf, s[i])
	}

	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func formEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isAlnum(c) || c == '*' || c == '-' || c == '.' || c == '_':
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}

	return b.String()
}

// unhexAt decodes the escape "%XX" starting at s[i].
func unhexAt(s string, i int) (byte, bool) {
	if i+2 >= len(s) || s[i] != '%' {
		return 0, false
	}
	hi, ok1 := unhex(s[i+1])
	lo, ok2 := unhex(s[i+2])
	if !ok1 || !ok2 {
		return 0, false
	}
	return hi<<4 | lo, true
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func utf8SequenceLength(lead byte) int {
	switch {
	case lead&0xe0 == 0xc0:
		return 2
	case lead&0xf0 == 0xe0:
		return 3
	case lead&0xf8 == 0xf0:
		return 4
	}
	return 0
}

func upperASCII(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func isAlnum(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrNotAbsolute       = errors.New("url is not absolute")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form
// suitable for cache keys.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased, the host is converted to its IDNA ASCII form
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Fragments are removed
//   - An empty query ("?") is removed
//   - Path and non-empty query are preserved as-is
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
func Canonicalize(sourceUrl url.URL) url.URL {
	canonical := sourceUrl

	canonical.Scheme = lowerASCII(canonical.Scheme)
	if host, err := canonicalHost(canonical.Scheme, canonical.Host); err == nil {
		canonical.Host = host
	} else {
		canonical.Host = lowerASCII(canonical.Host)
	}

	canonical.Fragment = ""
	canonical.RawFragment = ""

	if canonical.RawQuery == "" {
		canonical.ForceQuery = false
	}

	return canonical
}

// Origin returns scheme://host[:port] for an absolute http(s) URL.
// The host is lowercased and IDNA-encoded, and the scheme's default port is dropped.
func Origin(u url.URL) (string, error) {
	scheme := lowerASCII(u.Scheme)
	if scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrNotAbsolute, u.String())
	}
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host, err := canonicalHost(scheme, u.Host)
	if err != nil {
		return "", err
	}
	return scheme + "://" + host, nil
}

// RequestPath returns the escaped path plus query of u, the form a robots
// directive is matched against. An empty path becomes "/".
func RequestPath(u url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

func canonicalHost(scheme, hostport string) (string, error) {
	host, port := splitHostPort(hostport)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrNotAbsolute)
	}

	if !strings.HasPrefix(host, "[") {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("invalid host %q: %w", host, err)
		}
		host = ascii
	}
	host = lowerASCII(host)

	if isDefaultPort(scheme, port) {
		port = ""
	}
	if port != "" {
		return host + ":" + port, nil
	}
	return host, nil
}

// splitHostPort separates host and port; IPv6 literals keep their brackets.
func splitHostPort(hostport string) (host, port string) {
	host = hostport
	colon := strings.LastIndexByte(host, ':')
	if colon != -1 && strings.IndexByte(host[colon:], ']') == -1 {
		host, port = host[:colon], host[colon+1:]
	}
	return host, port
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

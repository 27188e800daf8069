package render

import "net/url"

type LinkKind string

const (
	KindNavigation LinkKind = "navigation"
	KindImage      LinkKind = "image"
	KindAnchor     LinkKind = "anchor"
)

// LinkRef is a link found in a page, kept both as written and resolved
// against the page URL.
type LinkRef struct {
	raw      string
	resolved url.URL
	kind     LinkKind
}

func NewLinkRef(raw string, resolved url.URL, kind LinkKind) LinkRef {
	return LinkRef{
		raw:      raw,
		resolved: resolved,
		kind:     kind,
	}
}

func (l *LinkRef) Raw() string {
	return l.raw
}

func (l *LinkRef) Resolved() url.URL {
	return l.resolved
}

func (l *LinkRef) Kind() LinkKind {
	return l.kind
}

package render

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/politebot/internal/metadata"
	"golang.org/x/net/html"
)

/*
Renderer turns a fetched HTML page into what the CLI prints.

Markdown:
- Headings, emphasis, lists and code blocks map to CommonMark
- Tables are converted structurally (GFM)
- Links and images are kept as written (no resolution)

Links:
- <a href> and <img src> in document order
- each link is resolved against the page URL; unparseable ones are skipped
*/
type Renderer struct {
	metadataSink metadata.MetadataSink
	converter    *converter.Converter
}

func NewRenderer(metadataSink metadata.MetadataSink) *Renderer {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &Renderer{
		metadataSink: metadataSink,
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts an HTML document to Markdown.
func (r *Renderer) Markdown(page url.URL, body []byte) ([]byte, *RenderError) {
	doc, renderErr := parse(body)
	if renderErr != nil {
		r.recordError("Renderer.Markdown", page, renderErr)
		return nil, renderErr
	}

	markdown, err := r.converter.ConvertNode(doc)
	if err != nil {
		renderErr = &RenderError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseConversionFailure,
		}
		r.recordError("Renderer.Markdown", page, renderErr)
		return nil, renderErr
	}
	return markdown, nil
}

// Links lists the links of an HTML document, resolved against page.
func (r *Renderer) Links(page url.URL, body []byte) ([]LinkRef, *RenderError) {
	doc, renderErr := parse(body)
	if renderErr != nil {
		r.recordError("Renderer.Links", page, renderErr)
		return nil, renderErr
	}
	return extractLinkRefs(page, doc), nil
}

func parse(body []byte) (*html.Node, *RenderError) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &RenderError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseParseFailure,
		}
	}
	return doc, nil
}

func extractLinkRefs(page url.URL, doc *html.Node) []LinkRef {
	var linkRefs []LinkRef

	// One selector keeps document order across both tags.
	goquery.NewDocumentFromNode(doc).Find("a[href], img[src]").Each(func(i int, s *goquery.Selection) {
		tagName := goquery.NodeName(s)
		attr := "href"
		if tagName == "img" {
			attr = "src"
		}
		raw, _ := s.Attr(attr)
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}

		ref, err := url.Parse(raw)
		if err != nil {
			return
		}
		resolved := page.ResolveReference(ref)
		linkRefs = append(linkRefs, NewLinkRef(raw, *resolved, kindOf(tagName, raw)))
	})

	return linkRefs
}

func kindOf(tagName, raw string) LinkKind {
	switch {
	case tagName == "img":
		return KindImage
	case strings.HasPrefix(raw, "#"):
		return KindAnchor
	default:
		return KindNavigation
	}
}

func (r *Renderer) recordError(callerMethod string, page url.URL, err *RenderError) {
	r.metadataSink.RecordError(
		time.Now(),
		"render",
		callerMethod,
		mapRenderErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, page.String()),
		},
	)
}

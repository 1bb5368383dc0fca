package importer

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTitle is returned when a page carries no usable title
var ErrNoTitle = errors.New("page has no title")

// Parser extracts movie metadata from HTML pages
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseDraft reads OpenGraph and plain HTML metadata from a page.
// The page URL itself stands in for the video when none is declared.
func (p *Parser) ParseDraft(html string, pageURL *url.URL) (*Draft, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	title := firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
		strings.TrimSpace(doc.Find("h1").First().Text()),
	)
	if title == "" {
		return nil, ErrNoTitle
	}

	description := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
		metaContent(doc, `meta[name="twitter:description"]`),
	)
	if description == "" {
		description = title
	}

	video := firstNonEmpty(
		metaContent(doc, `meta[property="og:video:secure_url"]`),
		metaContent(doc, `meta[property="og:video:url"]`),
		metaContent(doc, `meta[property="og:video"]`),
		attr(doc, "video source[src]", "src"),
		attr(doc, "video[src]", "src"),
	)

	location := pageURL.String()
	if video != "" {
		if ref, err := url.Parse(video); err == nil {
			location = pageURL.ResolveReference(ref).String()
		}
	}

	return &Draft{
		Title:         collapseSpace(title),
		Description:   strings.TrimSpace(description),
		VideoLocation: location,
		PageURL:       pageURL.String(),
	}, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	return attr(doc, selector, "content")
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

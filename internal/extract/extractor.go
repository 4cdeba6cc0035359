package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"newspipe/internal/dedup"
	"newspipe/internal/textutil"
	"newspipe/pkg/models"
)

// ErrMissingRequiredField reports a required selector that produced no
// usable value after the page parsed.
var ErrMissingRequiredField = errors.New("required field missing")

// ErrNoRecords reports a listing or feed page with nothing extractable on it.
var ErrNoRecords = errors.New("no extractable records")

// ExtractionError carries which schema field failed on which page. The
// coordinator drops the page and counts it; extraction failures are never
// fatal to the run.
type ExtractionError struct {
	URL    string
	Schema string
	Field  string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (schema %s): %s: %v", e.URL, e.Schema, e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Publication date layouts, tried in order. First match wins.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// ParseDate parses a publication date against the known layouts. Unparsable
// input yields nil; a missing date never fails a record.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// Extractor turns fetched bodies into article records according to a site
// schema.
type Extractor struct {
	feeds *gofeed.Parser
}

func New() *Extractor {
	return &Extractor{feeds: gofeed.NewParser()}
}

// Extract applies the schema to a fetched body. An article page yields
// exactly one record, a listing schema (Item set) one per matching
// container, a feed schema one per feed item. Parsing is forgiving:
// malformed markup alone never fails extraction, only required fields
// still missing afterwards do.
func (e *Extractor) Extract(body []byte, pageURL string, schema *models.SiteSchema) ([]models.ArticleRecord, error) {
	if schema.Type == models.SchemaFeed {
		return e.extractFeed(body, pageURL, schema)
	}
	return extractHTML(body, pageURL, schema)
}

func extractHTML(body []byte, pageURL string, schema *models.SiteSchema) ([]models.ArticleRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "document", Err: err}
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "url", Err: err}
	}

	if schema.Item == "" {
		rec, err := extractOne(doc.Selection, base, schema)
		if err != nil {
			return nil, err
		}
		return []models.ArticleRecord{*rec}, nil
	}

	var records []models.ArticleRecord
	doc.Find(schema.Item).Each(func(_ int, item *goquery.Selection) {
		rec, err := extractOne(item, base, schema)
		if err != nil {
			// Listing items missing required fields are skipped, not fatal.
			return
		}
		records = append(records, *rec)
	})
	if len(records) == 0 {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "item", Err: ErrNoRecords}
	}
	return records, nil
}

func extractOne(root *goquery.Selection, base *url.URL, schema *models.SiteSchema) (*models.ArticleRecord, error) {
	missing := func(field string) (*models.ArticleRecord, error) {
		return nil, &ExtractionError{URL: base.String(), Schema: schema.Name, Field: field, Err: ErrMissingRequiredField}
	}

	title := textutil.CollapseSpace(selectText(root, schema.Title))
	if title == "" {
		return missing("title")
	}

	href := selectLink(root, schema.Link)
	if href == "" {
		return missing("link")
	}
	abs, err := base.Parse(href)
	if err != nil {
		return nil, &ExtractionError{URL: base.String(), Schema: schema.Name, Field: "link", Err: err}
	}

	rec := &models.ArticleRecord{
		URL:     abs.String(),
		Title:   title,
		Summary: textutil.CollapseSpace(selectText(root, schema.Summary)),
		Source:  schema.Name,
	}
	rec.PublishedAt = ParseDate(selectText(root, schema.Date))
	rec.Fingerprint = dedup.Fingerprint(rec.Title, rec.URL)
	return rec, nil
}

// firstMatch looks for the selector under root, falling back to root itself
// when the container is the addressed element (a listing whose Item is the
// anchor, say).
func firstMatch(root *goquery.Selection, selector string) *goquery.Selection {
	if sel := root.Find(selector).First(); sel.Length() > 0 {
		return sel
	}
	return root.Filter(selector).First()
}

func selectText(root *goquery.Selection, f models.FieldSelector) string {
	if f.Empty() {
		return ""
	}
	sel := firstMatch(root, f.Selector)
	if sel.Length() == 0 {
		return ""
	}
	if f.Attr != "" {
		return strings.TrimSpace(sel.AttrOr(f.Attr, ""))
	}
	return strings.TrimSpace(sel.Text())
}

// selectLink reads the link field. Links come from an attribute, href unless
// the schema names another.
func selectLink(root *goquery.Selection, f models.FieldSelector) string {
	if f.Empty() {
		return ""
	}
	sel := firstMatch(root, f.Selector)
	if sel.Length() == 0 {
		return ""
	}
	attr := f.Attr
	if attr == "" {
		attr = "href"
	}
	return strings.TrimSpace(sel.AttrOr(attr, ""))
}

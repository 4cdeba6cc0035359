package extract

import (
	"bytes"
	"net/url"

	"newspipe/internal/dedup"
	"newspipe/internal/textutil"
	"newspipe/pkg/models"
)

// extractFeed parses RSS/Atom/JSON feed bodies. Field selectors do not
// apply; the feed's own structure names title, link, description and
// publication time.
func (e *Extractor) extractFeed(body []byte, pageURL string, schema *models.SiteSchema) ([]models.ArticleRecord, error) {
	feed, err := e.feeds.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "feed", Err: err}
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "url", Err: err}
	}

	var records []models.ArticleRecord
	for _, item := range feed.Items {
		title := textutil.CollapseSpace(item.Title)
		if title == "" || item.Link == "" {
			continue
		}

		link := item.Link
		if u, err := base.Parse(item.Link); err == nil {
			link = u.String()
		}

		rec := models.ArticleRecord{
			URL:     link,
			Title:   title,
			Summary: textutil.StripTags(item.Description),
			Source:  schema.Name,
		}
		if item.PublishedParsed != nil {
			ts := *item.PublishedParsed
			rec.PublishedAt = &ts
		} else {
			rec.PublishedAt = ParseDate(item.Published)
		}
		rec.Fingerprint = dedup.Fingerprint(rec.Title, rec.URL)
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, &ExtractionError{URL: pageURL, Schema: schema.Name, Field: "items", Err: ErrNoRecords}
	}
	return records, nil
}

package extract

import (
	"errors"
	"testing"
	"time"

	"newspipe/pkg/models"
)

const rssFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Wire</title>
  <link>https://wire.example.com/</link>
  <item>
    <title>First Story</title>
    <link>https://wire.example.com/first</link>
    <description><![CDATA[<p>Opening &amp; context.</p>]]></description>
    <pubDate>Sat, 01 Mar 2025 09:30:00 +0000</pubDate>
  </item>
  <item>
    <title>Second Story</title>
    <link>/second</link>
  </item>
  <item>
    <title></title>
    <link>https://wire.example.com/untitled</link>
  </item>
</channel>
</rss>`

func feedSchema() *models.SiteSchema {
	return &models.SiteSchema{Name: "example-wire", Type: models.SchemaFeed}
}

func TestExtractFeed(t *testing.T) {
	recs, err := New().Extract([]byte(rssFixture), "https://wire.example.com/rss.xml", feedSchema())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (untitled item skipped)", len(recs))
	}

	first := recs[0]
	if first.Title != "First Story" || first.URL != "https://wire.example.com/first" {
		t.Errorf("first record = %q %q", first.Title, first.URL)
	}
	if first.Summary != "Opening & context." {
		t.Errorf("Summary = %q, markup should be stripped", first.Summary)
	}
	want := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", first.PublishedAt, want)
	}
	if first.Source != "example-wire" {
		t.Errorf("Source = %q", first.Source)
	}

	second := recs[1]
	if second.URL != "https://wire.example.com/second" {
		t.Errorf("relative feed link not resolved: %q", second.URL)
	}
	if second.PublishedAt != nil {
		t.Errorf("undated item should have nil PublishedAt, got %v", second.PublishedAt)
	}
}

func TestExtractFeedUnparsable(t *testing.T) {
	_, err := New().Extract([]byte("this is not a feed"), "https://wire.example.com/rss.xml", feedSchema())
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want ExtractionError", err)
	}
}

func TestExtractFeedEmpty(t *testing.T) {
	const empty = `<?xml version="1.0"?><rss version="2.0"><channel><title>Quiet</title></channel></rss>`
	_, err := New().Extract([]byte(empty), "https://wire.example.com/rss.xml", feedSchema())
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("error = %v, want ErrNoRecords", err)
	}
}

package extract

import (
	"errors"
	"testing"
	"time"

	"newspipe/internal/dedup"
	"newspipe/pkg/models"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Example | Central Bank Cuts Rates</title>
  <link rel="canonical" href="https://news.example.com/economy/rates-cut">
</head>
<body>
  <article>
    <h1 class="headline">Central   Bank
      Cuts Rates</h1>
    <p class="standfirst">The bank moved faster than markets expected.</p>
    <time datetime="2025-03-01T09:30:00Z">1 March 2025</time>
  </article>
</body>
</html>`

const listingHTML = `<!DOCTYPE html>
<html>
<body>
  <ul class="river">
    <li class="story">
      <a class="story-link" href="/economy/rates-cut">Central Bank Cuts Rates</a>
      <p class="teaser">Faster than expected.</p>
      <span class="when">2025-03-01</span>
    </li>
    <li class="story">
      <a class="story-link" href="https://other.example.org/markets">Markets Rally</a>
    </li>
    <li class="story">
      <p class="teaser">An item with no headline at all.</p>
    </li>
  </ul>
</body>
</html>`

func articleSchema() *models.SiteSchema {
	return &models.SiteSchema{
		Name:    "example-article",
		Title:   models.FieldSelector{Selector: "h1.headline"},
		Summary: models.FieldSelector{Selector: "p.standfirst"},
		Date:    models.FieldSelector{Selector: "time", Attr: "datetime"},
		Link:    models.FieldSelector{Selector: `link[rel="canonical"]`},
	}
}

func TestExtractArticlePage(t *testing.T) {
	recs, err := New().Extract([]byte(articleHTML), "https://news.example.com/economy/rates-cut?ref=home", articleSchema())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Title != "Central Bank Cuts Rates" {
		t.Errorf("Title = %q, want collapsed headline", rec.Title)
	}
	if rec.Summary != "The bank moved faster than markets expected." {
		t.Errorf("Summary = %q", rec.Summary)
	}
	if rec.URL != "https://news.example.com/economy/rates-cut" {
		t.Errorf("URL = %q, want the canonical link", rec.URL)
	}
	if rec.Source != "example-article" {
		t.Errorf("Source = %q", rec.Source)
	}
	want := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	if rec.PublishedAt == nil || !rec.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", rec.PublishedAt, want)
	}
	if rec.Fingerprint != dedup.Fingerprint(rec.Title, rec.URL) {
		t.Error("Fingerprint does not match title+url")
	}
}

func TestExtractMissingTitle(t *testing.T) {
	schema := articleSchema()
	schema.Title = models.FieldSelector{Selector: "h1.nope"}

	_, err := New().Extract([]byte(articleHTML), "https://news.example.com/economy/rates-cut", schema)
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("error = %v, want ErrMissingRequiredField", err)
	}

	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("error = %v, want ExtractionError", err)
	}
	if ee.Field != "title" {
		t.Errorf("Field = %q, want title", ee.Field)
	}
}

func TestExtractMissingLink(t *testing.T) {
	schema := articleSchema()
	schema.Link = models.FieldSelector{Selector: "link[rel=nope]"}

	_, err := New().Extract([]byte(articleHTML), "https://news.example.com/economy/rates-cut", schema)
	var ee *ExtractionError
	if !errors.As(err, &ee) || ee.Field != "link" {
		t.Fatalf("error = %v, want ExtractionError on link", err)
	}
}

func TestExtractListing(t *testing.T) {
	schema := &models.SiteSchema{
		Name:    "example-listing",
		Item:    "li.story",
		Title:   models.FieldSelector{Selector: "a.story-link"},
		Summary: models.FieldSelector{Selector: "p.teaser"},
		Date:    models.FieldSelector{Selector: "span.when"},
		Link:    models.FieldSelector{Selector: "a.story-link"},
	}

	recs, err := New().Extract([]byte(listingHTML), "https://news.example.com/", schema)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (third item has no headline)", len(recs))
	}

	if recs[0].URL != "https://news.example.com/economy/rates-cut" {
		t.Errorf("relative link not resolved: %q", recs[0].URL)
	}
	if recs[0].PublishedAt == nil {
		t.Error("first item's date should parse")
	}
	if recs[1].URL != "https://other.example.org/markets" {
		t.Errorf("absolute link rewritten: %q", recs[1].URL)
	}
	if recs[1].Summary != "" {
		t.Errorf("missing optional summary should be empty, got %q", recs[1].Summary)
	}
	if recs[1].PublishedAt != nil {
		t.Errorf("missing date should be nil, got %v", recs[1].PublishedAt)
	}
}

func TestExtractListingAnchorItems(t *testing.T) {
	const page = `<html><body>
	  <a class="card" href="/a">Story A</a>
	  <a class="card" href="/b">Story B</a>
	</body></html>`

	schema := &models.SiteSchema{
		Name:  "cards",
		Item:  "a.card",
		Title: models.FieldSelector{Selector: "a.card"},
		Link:  models.FieldSelector{Selector: "a.card"},
	}

	recs, err := New().Extract([]byte(page), "https://news.example.com/", schema)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Title != "Story A" || recs[0].URL != "https://news.example.com/a" {
		t.Errorf("first card = %q %q", recs[0].Title, recs[0].URL)
	}
}

func TestExtractListingNoItems(t *testing.T) {
	schema := &models.SiteSchema{
		Name:  "example-listing",
		Item:  "li.story",
		Title: models.FieldSelector{Selector: "a"},
		Link:  models.FieldSelector{Selector: "a"},
	}

	_, err := New().Extract([]byte("<html><body><p>quiet day</p></body></html>"), "https://news.example.com/", schema)
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("error = %v, want ErrNoRecords", err)
	}
}

func TestExtractToleratesMalformedHTML(t *testing.T) {
	const truncated = `<html><body><h1 class="headline">Broken Markup, Readable Story<p class="standfirst">Never closed<a class="more" href="/read"`

	schema := &models.SiteSchema{
		Name:  "broken",
		Title: models.FieldSelector{Selector: "h1.headline"},
		Link:  models.FieldSelector{Selector: "a.more"},
	}

	recs, err := New().Extract([]byte(truncated), "https://news.example.com/x", schema)
	if err != nil {
		t.Fatalf("truncated markup should still extract: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		raw  string
		want string // RFC3339, empty for nil
	}{
		{"2025-03-01T09:30:00Z", "2025-03-01T09:30:00Z"},
		{"2025-03-01 09:30:00", "2025-03-01T09:30:00Z"},
		{"Sat, 01 Mar 2025 09:30:00 +0000", "2025-03-01T09:30:00Z"},
		{"2025-03-01", "2025-03-01T00:00:00Z"},
		{"Mar 1, 2025", "2025-03-01T00:00:00Z"},
		{"March 1, 2025", "2025-03-01T00:00:00Z"},
		{"1 Mar 2025", "2025-03-01T00:00:00Z"},
		{"1 March 2025", "2025-03-01T00:00:00Z"},
		{"yesterday-ish", ""},
		{"", ""},
	}

	for _, tt := range tests {
		got := ParseDate(tt.raw)
		if tt.want == "" {
			if got != nil {
				t.Errorf("ParseDate(%q) = %v, want nil", tt.raw, got)
			}
			continue
		}
		want, err := time.Parse(time.RFC3339, tt.want)
		if err != nil {
			t.Fatal(err)
		}
		if got == nil || !got.Equal(want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.raw, got, want)
		}
	}
}

package models

import "time"

// FetchRequest is one unit of frontier work. The coordinator creates one per
// seed, follow link, or retry, and destroys it on terminal success or failure.
type FetchRequest struct {
	URL        string
	Priority   int
	Attempts   int
	SchemaName string
}

// FetchResult carries a successfully fetched body. Failures travel as errors
// next to it, classified by the fetch package.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
}

// ArticleRecord is one extracted article. Immutable once built. URL is the
// article link resolved during extraction, which may differ from the page the
// record was extracted from. Fingerprint uniquely keys the dedup set.
type ArticleRecord struct {
	URL            string
	Title          string
	Summary        string
	PublishedAt    *time.Time
	Source         string
	Fingerprint    string
	SentimentScore *float64
}

package dedup

import "context"

// Store is the dedup backend the pipeline coordinator talks to. For any
// fingerprint, at most one CheckAndInsert call across all concurrent callers
// returns isNew=true. A backend error means membership is unknown; callers
// log it and treat the record as new, so a flaky backend can produce the
// occasional duplicate but never loses an article.
type Store interface {
	CheckAndInsert(ctx context.Context, fingerprint string) (isNew bool, err error)
	Close(ctx context.Context) error
}

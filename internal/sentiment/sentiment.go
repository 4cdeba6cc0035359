// Package sentiment scores article text on a [-1, 1] scale. Scoring is a
// best-effort enrichment: a scorer failure leaves the record's score null
// and never aborts the pipeline.
package sentiment

import "context"

// Scorer rates text between -1 (negative) and 1 (positive).
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// Label buckets a score for the run report. Scores within 0.1 of zero read
// as neutral.
func Label(score float64) string {
	switch {
	case score > 0.1:
		return "positive"
	case score < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

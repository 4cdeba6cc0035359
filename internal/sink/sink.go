// Package sink delivers deduplicated article records to their destinations.
package sink

import (
	"context"

	"newspipe/pkg/models"
)

// Sink receives article records that survived dedup. Emit may buffer;
// Close flushes whatever is still buffered and releases the destination.
type Sink interface {
	Emit(ctx context.Context, rec models.ArticleRecord) error
	Close(ctx context.Context) error
}

// Multi fans records out to several destinations. Every sink sees every
// record; the first error is reported.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, rec models.ArticleRecord) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close(ctx context.Context) error {
	var first error
	for _, s := range m {
		if err := s.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

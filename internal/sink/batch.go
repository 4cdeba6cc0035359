package sink

import (
	"context"
	"log/slog"
	"time"

	"newspipe/pkg/models"
)

// dbSink buffers records on a channel and writes them in batches, either
// when the buffer fills or when the ticker fires. Database destinations
// share it so per-record round trips never gate the workers.
type dbSink struct {
	records chan models.ArticleRecord
	done    chan struct{}
	flush   func([]models.ArticleRecord) error
	closeFn func() error
}

func newDBSink(batchSize int, flushEvery time.Duration, flush func([]models.ArticleRecord) error, closeFn func() error) *dbSink {
	if batchSize <= 0 {
		batchSize = 20
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	s := &dbSink{
		records: make(chan models.ArticleRecord, batchSize*2),
		done:    make(chan struct{}),
		flush:   flush,
		closeFn: closeFn,
	}
	go s.run(batchSize, flushEvery)
	return s
}

func (s *dbSink) run(batchSize int, flushEvery time.Duration) {
	defer close(s.done)

	buffer := make([]models.ArticleRecord, 0, batchSize)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	save := func() {
		if len(buffer) == 0 {
			return
		}
		if err := s.flush(buffer); err != nil {
			slog.Error("batch save failed", "records", len(buffer), "error", err)
		} else {
			slog.Debug("saved batch", "records", len(buffer))
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case rec, ok := <-s.records:
			// Close drains by closing the channel; flush the tail and stop.
			if !ok {
				save()
				return
			}
			buffer = append(buffer, rec)
			if len(buffer) >= batchSize {
				save()
			}
		case <-ticker.C:
			save()
		}
	}
}

func (s *dbSink) Emit(ctx context.Context, rec models.ArticleRecord) error {
	select {
	case s.records <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *dbSink) Close(ctx context.Context) error {
	close(s.records)
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

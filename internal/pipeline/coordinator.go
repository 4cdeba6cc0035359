// Package pipeline orchestrates the crawl: a bounded worker pool pulls
// requests off the priority frontier and walks each one through fetch,
// extraction, dedup, sentiment and the sink. The frontier, the seen-URL set
// and the run report all live inside the coordinator's event loop, so
// workers never share mutable state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"newspipe/internal/dedup"
	"newspipe/internal/extract"
	"newspipe/internal/fetch"
	"newspipe/internal/sentiment"
	"newspipe/internal/sink"
	"newspipe/internal/textutil"
	"newspipe/pkg/models"
)

var tracer = otel.Tracer("newspipe.pipeline")

// Fetcher is what workers need from the HTTP layer.
type Fetcher interface {
	Do(ctx context.Context, req models.FetchRequest, render bool) (*models.FetchResult, error)
	HostCounts() map[string]int64
}

// SchemaSource resolves which schema handles a URL or name. The validated
// configuration satisfies it.
type SchemaSource interface {
	SchemaFor(url string) *models.SiteSchema
	SchemaByName(name string) *models.SiteSchema
}

type Options struct {
	Workers    int
	MaxRetries int
	Keywords   []string
	Schemas    SchemaSource
}

// Coordinator runs the crawl to completion and owns its bookkeeping.
type Coordinator struct {
	opts      Options
	fetcher   Fetcher
	extractor *extract.Extractor
	store     dedup.Store
	out       sink.Sink
	scorer    sentiment.Scorer // nil when the sentiment stage is disabled

	drainCh   chan struct{}
	drainOnce sync.Once

	emitted metric.Int64Counter
}

func New(opts Options, f Fetcher, x *extract.Extractor, store dedup.Store, out sink.Sink, scorer sentiment.Scorer) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	c := &Coordinator{
		opts:      opts,
		fetcher:   f,
		extractor: x,
		store:     store,
		out:       out,
		scorer:    scorer,
		drainCh:   make(chan struct{}),
	}
	c.emitted, _ = otel.Meter("newspipe.pipeline").Int64Counter(
		"newspipe.pipeline.emitted",
		metric.WithDescription("article records emitted to sinks, by source schema"),
	)
	return c
}

// Drain winds the run down early: the frontier is discarded, requeues and
// follow links stop being admitted, in-flight requests finish, and Run
// returns its report as usual.
func (c *Coordinator) Drain() {
	c.drainOnce.Do(func() { close(c.drainCh) })
}

// event is a worker's account of one finished request.
type event struct {
	req     models.FetchRequest
	report  models.RunReport     // count deltas for this request
	requeue *models.FetchRequest // politeness timeout retry, nil otherwise
	follows []models.FetchRequest
}

// Run crawls from the seeds until the frontier drains and every worker is
// idle, then reports. Cancelling ctx abandons in-flight fetches and returns
// the partial report.
func (c *Coordinator) Run(ctx context.Context, seeds ...models.FetchRequest) *models.RunReport {
	dispatch := make(chan models.FetchRequest)
	events := make(chan event)

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, dispatch, events)
		}(i)
	}
	slog.Info("pipeline started", "workers", c.opts.Workers, "seeds", len(seeds))

	var front frontier
	seen := make(map[string]struct{}, len(seeds))
	for _, req := range seeds {
		if _, dup := seen[req.URL]; dup {
			continue
		}
		seen[req.URL] = struct{}{}
		front.push(req)
	}

	report := &models.RunReport{}
	inflight := 0
	draining := false
	drainCh := c.drainCh

	for {
		var (
			sendCh chan<- models.FetchRequest
			next   models.FetchRequest
		)
		if req, ok := front.peek(); ok {
			next, sendCh = req, dispatch
		}

		if sendCh == nil && inflight == 0 {
			break
		}

		select {
		case sendCh <- next:
			front.pop()
			inflight++
			slog.Debug("request state", "url", next.URL, "state", models.StateFetching, "attempt", next.Attempts)

		case ev := <-events:
			inflight--
			report.Add(ev.report)

			if ev.requeue != nil {
				if draining {
					report.FailedTerminal++
					slog.Warn("retry refused while draining", "url", ev.requeue.URL)
				} else {
					front.push(*ev.requeue)
					slog.Debug("request state", "url", ev.requeue.URL, "state", models.StateQueued, "attempt", ev.requeue.Attempts)
				}
			}
			if !draining {
				for _, f := range ev.follows {
					if _, dup := seen[f.URL]; dup {
						continue
					}
					seen[f.URL] = struct{}{}
					front.push(f)
				}
			}

		case <-drainCh:
			drainCh = nil
			draining = true
			if n := front.len(); n > 0 {
				slog.Info("drain requested, clearing frontier", "dropped", n)
			}
			front.clear()

		case <-ctx.Done():
			slog.Warn("run cancelled, abandoning in-flight requests", "inflight", inflight)
			close(dispatch)
			wg.Wait()
			report.PerHostRequests = c.fetcher.HostCounts()
			return report
		}
	}

	close(dispatch)
	wg.Wait()
	report.PerHostRequests = c.fetcher.HostCounts()
	return report
}

func (c *Coordinator) worker(ctx context.Context, id int, jobs <-chan models.FetchRequest, events chan<- event) {
	slog.Debug("worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-jobs:
			if !ok {
				return
			}
			ev := c.process(ctx, req)
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// process walks one request through the stage chain and accounts for every
// outcome; per-request errors end here as state transitions, never as
// panics or lost work.
func (c *Coordinator) process(ctx context.Context, req models.FetchRequest) event {
	ctx, span := tracer.Start(ctx, "ProcessRequest")
	defer span.End()
	span.SetAttributes(attribute.String("url", req.URL), attribute.Int("attempt", req.Attempts))

	ev := event{req: req}

	schema := c.schemaOf(req)
	if schema == nil {
		ev.report.FailedTerminal++
		err := fmt.Errorf("no schema matches %s", req.URL)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("request failed terminally", "url", req.URL, "error", err)
		return ev
	}
	span.SetAttributes(attribute.String("schema", schema.Name))

	res, err := c.fetcher.Do(ctx, req, schema.Render)
	if err != nil {
		return c.fetchFailure(ev, req, err, span)
	}
	ev.report.Fetched++

	slog.Debug("request state", "url", req.URL, "state", models.StateExtracting, "status", res.StatusCode, "elapsed", res.Elapsed)
	records, err := c.extractor.Extract(res.Body, req.URL, schema)
	if err != nil {
		ev.report.DroppedExtractionErrors++
		span.RecordError(err)
		slog.Warn("request state", "url", req.URL, "state", models.StateDropped, "error", err)
		return ev
	}

	if schema.Follow != "" {
		for _, rec := range records {
			ev.follows = append(ev.follows, models.FetchRequest{
				URL:        rec.URL,
				Priority:   req.Priority,
				SchemaName: schema.Follow,
			})
		}
		slog.Debug("listing expanded", "url", req.URL, "links", len(ev.follows))
		return ev
	}

	ev.report.Extracted += int64(len(records))

	emitted := 0
	for _, rec := range records {
		if len(c.opts.Keywords) > 0 && !textutil.ContainsAny(rec.Title+" "+rec.Summary, c.opts.Keywords) {
			ev.report.KeywordFiltered++
			continue
		}

		isNew, err := c.store.CheckAndInsert(ctx, rec.Fingerprint)
		if err != nil {
			slog.Warn("dedup check failed, treating record as new", "url", rec.URL, "error", err)
			isNew = true
		}
		if !isNew {
			ev.report.Deduped++
			continue
		}

		if c.scorer != nil {
			c.score(ctx, &rec, &ev.report)
		}

		if err := c.out.Emit(ctx, rec); err != nil {
			slog.Error("sink emit failed", "url", rec.URL, "error", err)
			continue
		}
		ev.report.Emitted++
		emitted++
		c.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("source", rec.Source)))
	}

	state := models.StateEmitted
	if emitted == 0 {
		state = models.StateDropped
	}
	slog.Debug("request state", "url", req.URL, "state", state, "records", len(records), "emitted", emitted)
	return ev
}

// fetchFailure sorts a fetch error into requeue or terminal. Only the
// politeness timeout requeues: it consumed no HTTP attempt, while transient
// errors surface from the fetcher with their retry budget already spent.
func (c *Coordinator) fetchFailure(ev event, req models.FetchRequest, err error, span trace.Span) event {
	var rl *fetch.RateLimitTimeoutError
	if errors.As(err, &rl) && req.Attempts < c.opts.MaxRetries {
		retry := req
		retry.Attempts++
		ev.requeue = &retry
		slog.Debug("request state", "url", req.URL, "state", models.StateFailed, "error", err)
		return ev
	}

	ev.report.FailedTerminal++
	if errors.Is(err, fetch.ErrRobotsDisallowed) {
		ev.report.RobotsDenied++
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.Warn("request state", "url", req.URL, "state", models.StateFailedTerminal, "attempt", req.Attempts, "error", err)
	return ev
}

func (c *Coordinator) score(ctx context.Context, rec *models.ArticleRecord, report *models.RunReport) {
	score, err := c.scorer.Score(ctx, rec.Title+" "+rec.Summary)
	if err != nil {
		slog.Debug("record left unscored", "url", rec.URL, "error", err)
		return
	}
	s := score
	rec.SentimentScore = &s
	switch sentiment.Label(score) {
	case "positive":
		report.SentimentPositive++
	case "negative":
		report.SentimentNegative++
	default:
		report.SentimentNeutral++
	}
}

func (c *Coordinator) schemaOf(req models.FetchRequest) *models.SiteSchema {
	if req.SchemaName != "" {
		return c.opts.Schemas.SchemaByName(req.SchemaName)
	}
	return c.opts.Schemas.SchemaFor(req.URL)
}

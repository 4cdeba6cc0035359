// Package fetch issues polite, retrying HTTP requests and classifies their
// failures into transient, permanent, and rate-limit-timeout errors.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"newspipe/pkg/models"
)

var tracer = otel.Tracer("newspipe.fetch")

// Options configure a Fetcher. Zero values fall back to modest defaults.
type Options struct {
	Timeout       time.Duration
	MaxRetries    int
	UserAgent     string
	MaxBodyBytes  int64
	HostInterval  time.Duration
	RespectRobots bool
	Backoff       Backoff
	Renderer      *Renderer
}

// Fetcher is shared by all workers. The embedded http.Client reuses
// connections across them for its lifetime.
type Fetcher struct {
	opts    Options
	client  *http.Client
	limiter *HostLimiter
	robots  *Robots

	mu     sync.Mutex
	counts map[string]int64

	requests metric.Int64Counter
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 2 << 20
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}

	f := &Fetcher{
		opts:    opts,
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: NewHostLimiter(opts.HostInterval),
		counts:  make(map[string]int64),
	}
	if opts.RespectRobots {
		f.robots = NewRobots(opts.UserAgent, opts.Timeout)
	}

	f.requests, _ = otel.Meter("newspipe.fetch").Int64Counter(
		"newspipe.fetch.requests",
		metric.WithDescription("HTTP requests issued, by host"),
	)
	return f
}

// Do fetches one request. Transient failures retry inline with backoff until
// the budget of MaxRetries extra attempts is spent; 429 responses honor a
// Retry-After hint. Rendered fetches make a single navigation attempt. The
// politeness wait consumes no attempt but, like everything else here, is
// bounded by the overall request timeout.
func (f *Fetcher) Do(ctx context.Context, req models.FetchRequest, render bool) (*models.FetchResult, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", req.URL))

	u, err := url.Parse(req.URL)
	if err == nil && (u.Host == "" || (u.Scheme != "http" && u.Scheme != "https")) {
		err = fmt.Errorf("not an absolute http(s) url")
	}
	if err != nil {
		return nil, fail(span, &PermanentError{URL: req.URL, Err: err})
	}

	if f.robots != nil && !f.robots.Allowed(req.URL) {
		return nil, fail(span, &PermanentError{URL: req.URL, Err: ErrRobotsDisallowed})
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	start := time.Now()
	maxAttempts := 1 + f.opts.MaxRetries
	if render && f.opts.Renderer != nil {
		maxAttempts = 1
	}

	var (
		attempts   int
		lastStatus int
		lastErr    error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := f.limiter.Wait(reqCtx, u.Host); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fail(span, &RateLimitTimeoutError{URL: req.URL, Host: u.Host})
		}

		body, status, header, err := f.doOnce(reqCtx, req.URL, render)
		f.count(u.Host)
		attempts = attempt

		if err == nil && status < 400 {
			span.SetAttributes(attribute.Int("status", status), attribute.Int("attempts", attempts))
			return &models.FetchResult{
				URL:        req.URL,
				StatusCode: status,
				Body:       body,
				Elapsed:    time.Since(start),
			}, nil
		}

		lastStatus = status
		lastErr = err
		if err == nil {
			lastErr = fmt.Errorf("status %d", status)
		}

		retryable, wait := classify(status, header, err, attempt, f.opts.Backoff)
		if !retryable {
			return nil, fail(span, &PermanentError{URL: req.URL, Status: status, Err: err})
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleep(reqCtx, wait); err != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fail(span, &TransientError{
		URL:      req.URL,
		Status:   lastStatus,
		Attempts: attempts,
		Err:      lastErr,
	})
}

func (f *Fetcher) doOnce(ctx context.Context, rawURL string, render bool) ([]byte, int, http.Header, error) {
	if render && f.opts.Renderer != nil {
		body, err := f.opts.Renderer.Fetch(ctx, rawURL)
		if err != nil {
			return nil, 0, nil, err
		}
		return body, http.StatusOK, nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, resp.Header, err
	}
	return body, resp.StatusCode, resp.Header, nil
}

// classify decides whether a failed attempt is worth another try and how
// long to pause first. DNS failures and 4xx outside 429 are permanent;
// timeouts, transport errors, 5xx, and 429 are not.
func classify(status int, header http.Header, err error, attempt int, b Backoff) (bool, time.Duration) {
	switch {
	case err != nil:
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return false, 0
		}
		return true, b.Delay(attempt)
	case status == http.StatusTooManyRequests:
		if d, ok := RetryAfter(header, time.Now()); ok {
			return true, d
		}
		return true, b.Delay(attempt)
	case status >= 500:
		return true, b.Delay(attempt)
	default:
		return false, 0
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (f *Fetcher) count(host string) {
	f.mu.Lock()
	f.counts[host]++
	f.mu.Unlock()

	if f.requests != nil {
		f.requests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("host", host)))
	}
}

// HostCounts snapshots per-host issued request counts for the run report.
func (f *Fetcher) HostCounts() map[string]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]int64, len(f.counts))
	for host, n := range f.counts {
		out[host] = n
	}
	return out
}

package fetch

import (
	"errors"
	"fmt"
)

// ErrRobotsDisallowed marks URLs the target site's robots.txt excludes.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// TransientError is a retryable fetch failure: timeout, connection trouble,
// or a 5xx response. By the time one surfaces from Do the inline retry
// budget is already spent, so callers treat it as terminal.
type TransientError struct {
	URL      string
	Status   int // 0 when no response was received
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempts", e.URL, e.Status, e.Attempts)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempts", e.URL, e.Err, e.Attempts)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is not worth retrying: a 4xx other than 429, a malformed
// URL, a DNS failure, or a robots.txt denial.
type PermanentError struct {
	URL    string
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// RateLimitTimeoutError reports that the politeness wait for a host could not
// finish inside the request timeout. No HTTP attempt was consumed; the
// request may be queued again once the host's budget recovers.
type RateLimitTimeoutError struct {
	URL  string
	Host string
}

func (e *RateLimitTimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: politeness wait for %s exceeded the request timeout", e.URL, e.Host)
}

package fetch

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Backoff computes retry pauses: Base doubling per attempt, capped at Max,
// spread by ±Jitter so synchronized workers do not hammer a recovering host
// in lockstep.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2}
}

// Delay returns the pause before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			break
		}
	}
	if d > b.Max {
		d = b.Max
	}
	if b.Jitter > 0 {
		// Uniform in [1-Jitter, 1+Jitter].
		d = time.Duration(float64(d) * (1 - b.Jitter + 2*b.Jitter*rand.Float64()))
	}
	return d
}

// RetryAfter reads a Retry-After header, either delta-seconds or an HTTP
// date. The second return is false when the header is absent or unusable.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

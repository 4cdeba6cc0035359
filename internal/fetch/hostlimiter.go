package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter hands every host its own token bucket so one busy site never
// throttles the rest. Buckets are created on first use with the configured
// minimum inter-request interval and burst 1: the first request goes out
// immediately, every later one waits out the spacing.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

func (h *HostLimiter) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	lim, ok := h.limiters[host]
	if !ok {
		limit := rate.Inf
		if h.interval > 0 {
			limit = rate.Every(h.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		h.limiters[host] = lim
	}
	return lim
}

// Wait blocks until host's bucket grants a token or ctx ends. The limiter
// fails fast when the expected wait would overrun the context deadline, so a
// hopeless wait does not burn the whole request timeout first.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiter(host).Wait(ctx)
}

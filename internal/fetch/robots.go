package fetch

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Robots caches one robots.txt ruling group per host. A missing file, a
// fetch error, or unparsable rules all count as allowed, the usual crawler
// reading. The nil group is cached too so a dead host is asked only once.
type Robots struct {
	mu     sync.Mutex
	groups map[string]*robotstxt.Group
	client *http.Client
	agent  string
}

func NewRobots(agent string, timeout time.Duration) *Robots {
	return &Robots{
		groups: make(map[string]*robotstxt.Group),
		client: &http.Client{Timeout: timeout},
		agent:  agent,
	}
}

// Allowed reports whether the URL may be fetched. The first call for a host
// fetches its robots.txt; later calls hit the cache. The fetch happens
// outside the lock, so two workers racing on a fresh host may both fetch;
// the duplicate write is harmless.
func (r *Robots) Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	r.mu.Lock()
	group, cached := r.groups[u.Host]
	r.mu.Unlock()

	if !cached {
		group = r.fetchGroup(u)
		r.mu.Lock()
		r.groups[u.Host] = group
		r.mu.Unlock()
	}

	if group == nil {
		return true
	}
	return group.Test(u.Path)
}

func (r *Robots) fetchGroup(u *url.URL) *robotstxt.Group {
	resp, err := r.client.Get(u.Scheme + "://" + u.Host + "/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		slog.Debug("unparsable robots.txt", "host", u.Host, "error", err)
		return nil
	}
	return data.FindGroup(r.agent)
}

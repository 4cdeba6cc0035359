package fetch

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Renderer fetches pages through a headless browser for sites that only
// materialize their content after script execution. One browser process
// serves the whole run; every fetch opens its own tab.
type Renderer struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	agent         string
}

func NewRenderer(ctx context.Context, agent string) *Renderer {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(agent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Renderer{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		agent:         agent,
	}
}

// Fetch navigates to url in a fresh tab and returns the rendered document.
// The tab context must descend from the browser context, so the caller's
// deadline and cancellation are bridged onto it by hand.
func (r *Renderer) Fetch(ctx context.Context, url string) ([]byte, error) {
	tabCtx, cancel := chromedp.NewContext(r.browserCtx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	headers := network.Headers{"Accept-Language": "en"}

	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, err
	}
	return []byte(html), nil
}

func (r *Renderer) Close() {
	r.browserCancel()
	r.allocCancel()
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// browserSession wraps a headless Chrome instance for adapters whose
// Technology is spa-javascript or mixed (§4.B.2 step 3): pages that only
// render their schedule table after client-side script runs, so a plain
// HTTP GET returns an empty shell.
type browserSession struct {
	allocCtx   context.Context
	allocClose context.CancelFunc
	ctx        context.Context
	cancel     context.CancelFunc
}

func newBrowserSession(ctx context.Context) (*browserSession, error) {
	allocCtx, allocClose := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
		)...)

	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now rather than lazily on first
	// action, so a launch failure surfaces here and is treated as fatal
	// per §4.B.10, instead of failing mid-scrape on the first event.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocClose()
		return nil, fmt.Errorf("start headless chrome: %w", err)
	}

	return &browserSession{
		allocCtx:   allocCtx,
		allocClose: allocClose,
		ctx:        browserCtx,
		cancel:     cancel,
	}, nil
}

// RenderedHTML navigates to url, waits for the selector to appear (the
// schedule table has finished client-side rendering), and returns the
// page's outer HTML.
func (b *browserSession) RenderedHTML(ctx context.Context, url, waitSelector string, timeout time.Duration) (string, error) {
	tabCtx, cancel := chromedp.NewContext(b.ctx)
	defer cancel()

	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)
	defer timeoutCancel()

	var html string
	actions := []chromedp.Action{chromedp.Navigate(url)}
	if waitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (b *browserSession) Close() error {
	b.cancel()
	b.allocClose()
	return nil
}

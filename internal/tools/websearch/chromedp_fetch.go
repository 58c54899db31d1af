package websearch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// JSFetcher renders a page in a real headless Chrome instance before
// extraction, for the subset of live-data pages (weather widgets, JS
// single-page apps) that return near-empty markup to a plain HTTP GET.
type JSFetcher struct {
	timeout time.Duration
}

// NewJSFetcher builds a fetcher with the given per-page render timeout
// (defaults to 15s).
func NewJSFetcher(timeout time.Duration) *JSFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &JSFetcher{timeout: timeout}
}

// RenderHTML navigates to rawURL in a headless browser and returns the
// fully-rendered DOM's outer HTML after the page settles.
func (f *JSFetcher) RenderHTML(ctx context.Context, rawURL string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var html string
	if err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("chromedp render %s: %w", rawURL, err)
	}
	return html, nil
}

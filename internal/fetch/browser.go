package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/arqma/arqbot/internal/metrics"
)

const browserTimeout = 45 * time.Second

// Browser loads pages in headless Chrome and returns the rendered HTML.
// Used for the pool listing page when the site rejects plain HTTP clients.
type Browser struct {
	logger *slog.Logger
	// WaitSelector is the element that must be present before the DOM is read.
	WaitSelector string
}

func NewBrowser(logger *slog.Logger) *Browser {
	return &Browser{logger: logger, WaitSelector: "body"}
}

// FetchText navigates to url and returns document.documentElement.outerHTML.
// Failures are reported as *TransportError; there is no status code to check.
func (b *Browser) FetchText(ctx context.Context, source, url string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	}()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-crash-reporter", true),
		chromedp.Flag("crash-dumps-dir", "/tmp"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	tabCtx, cancel = context.WithTimeout(tabCtx, browserTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(b.WaitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		terr := &TransportError{Source: source, URL: url, Err: fmt.Errorf("chromedp: %w", err)}
		b.logger.Error("upstream fetch failed", "source", source, "error", terr)
		metrics.UpstreamRequestsTotal.WithLabelValues(source, "transport_error").Inc()
		return "", terr
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(source, "ok").Inc()
	b.logger.Debug("rendered page", "source", source, "bytes", len(html))
	return html, nil
}

package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jvanderlaan/branchscan/internal/proxy"
)

// browserSession is one exclusive browser context, bound to at most
// one proxy endpoint for its whole lifetime. Rotating the proxy means
// closing the session and opening a new one.
type browserSession interface {
	fetch(ctx context.Context, url string) ([]byte, error)
	close()
}

// chromedpSession implements browserSession on a headless Chrome
// started through chromedp.
type chromedpSession struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	userAgent   string
	navTimeout  time.Duration
	settleDelay time.Duration
}

// newChromedpSession starts a browser, optionally behind ep. An empty
// endpoint means a direct connection.
func newChromedpSession(ep proxy.Endpoint, userAgent string, navTimeout, settleDelay time.Duration) (*chromedpSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
	)
	if ep != "" {
		opts = append(opts, chromedp.ProxyServer(ep.URL()))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		userAgent:     userAgent,
		navTimeout:    navTimeout,
		settleDelay:   settleDelay,
	}

	// Start the browser now so a broken Chrome install surfaces as a
	// session error here instead of a fetch failure later.
	if err := chromedp.Run(browserCtx); err != nil {
		s.close()
		return nil, fmt.Errorf("%w: start browser: %v", ErrSessionFatal, err)
	}
	return s, nil
}

// fetch navigates to url, waits for the document plus a fixed settle
// delay, and returns the rendered markup.
func (s *chromedpSession) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := s.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFatal, err)
	}

	taskCtx, cancel := context.WithTimeout(s.browserCtx, s.navTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(taskCtx,
		s.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		// The browser context dying mid-run means the session, not the
		// page, failed.
		if s.browserCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionFatal, err)
		}
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	return []byte(html), nil
}

func (s *chromedpSession) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.userAgent != "" {
			if err := emulation.SetUserAgentOverride(s.userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// close tears down the browser and its allocator.
func (s *chromedpSession) close() {
	s.browserCancel()
	s.allocCancel()
}

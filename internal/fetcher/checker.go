// Package fetcher owns the browser session and the per-identifier
// fetch-classify-retry state machine. A check starts on a direct
// connection; only a rate-limited verdict rotates the session onto a
// fresh proxy, up to a bounded number of attempts.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jvanderlaan/branchscan/internal/classify"
	"github.com/jvanderlaan/branchscan/internal/kvk"
	"github.com/jvanderlaan/branchscan/internal/metrics"
	"github.com/jvanderlaan/branchscan/internal/proxy"
)

// ProxyPool is the part of the proxy pool the checker needs.
type ProxyPool interface {
	Acquire(ctx context.Context) (proxy.Endpoint, bool)
}

// Config controls checker behavior.
type Config struct {
	// BaseURL is the registry page prefix. Defaults to
	// kvk.DefaultBaseURL.
	BaseURL string
	// UserAgent overrides the browser's user agent when non-empty.
	UserAgent string
	// MaxAttempts bounds total fetches per identifier: one direct plus
	// MaxAttempts-1 proxy retries. Defaults to 3.
	MaxAttempts int
	// NavTimeout bounds one navigation. Defaults to 45s.
	NavTimeout time.Duration
	// SettleDelay is the fixed wait after the document loads, giving
	// the page's scripts time to fill the data regions. Defaults to 2s.
	SettleDelay time.Duration
}

// Checker performs registry page checks through one exclusive browser
// session at a time.
type Checker struct {
	cfg    Config
	pool   ProxyPool
	logger *zap.Logger

	// newSession is swapped out in tests.
	newSession func(ep proxy.Endpoint) (browserSession, error)

	sess      browserSession
	sessProxy proxy.Endpoint
}

// New builds a Checker. The browser session is started lazily on the
// first check so constructing a Checker never launches Chrome.
func New(pool ProxyPool, cfg Config, logger *zap.Logger) *Checker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = kvk.DefaultBaseURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
	}
	c.newSession = func(ep proxy.Endpoint) (browserSession, error) {
		return newChromedpSession(ep, cfg.UserAgent, cfg.NavTimeout, cfg.SettleDelay)
	}
	return c
}

// CheckBranches fetches and classifies the registry page for number.
// It returns a resolved verdict, or an error: ErrRateLimited /
// ErrNoProxies when rotation is exhausted, ErrSessionFatal when the
// browser is broken, and a plain error for any other single-fetch
// failure.
func (c *Checker) CheckBranches(ctx context.Context, number kvk.Number, name string) (classify.Verdict, error) {
	url := number.PageURL(c.cfg.BaseURL)

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			// Rotation required: a missing proxy is exhaustion, not a
			// reason to burn another direct fetch.
			ep, ok := c.pool.Acquire(ctx)
			if !ok {
				return 0, fmt.Errorf("check %s attempt %d: %w", number, attempt+1, ErrNoProxies)
			}
			if err := c.rotate(ep); err != nil {
				return 0, err
			}
			metrics.ObserveRateLimitRetry()
		}

		markup, err := c.fetch(ctx, url)
		if err != nil {
			// Any non-rate-limit fetch error is non-retryable at this
			// layer; session-fatal wrapping propagates as-is.
			return 0, err
		}

		verdict, reason := classify.Classify(markup)
		c.logAttempt(number, attempt, verdict, reason)
		if verdict != classify.VerdictRateLimited {
			return verdict, nil
		}
	}

	return 0, fmt.Errorf("check %s after %d attempts: %w", number, c.cfg.MaxAttempts, ErrRateLimited)
}

// Close releases the live browser session, if any. Callers should
// defer this next to constructing the Checker so the session never
// outlives the run.
func (c *Checker) Close() {
	if c.sess != nil {
		c.sess.close()
		c.sess = nil
	}
}

func (c *Checker) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.sess == nil {
		sess, err := c.newSession("")
		if err != nil {
			return nil, err
		}
		c.sess = sess
		c.sessProxy = ""
	}
	return c.sess.fetch(ctx, url)
}

// rotate replaces the live session with one bound to ep. The old
// session is torn down first; a session is never rebound in place.
func (c *Checker) rotate(ep proxy.Endpoint) error {
	if c.sess != nil {
		c.sess.close()
		c.sess = nil
	}
	sess, err := c.newSession(ep)
	if err != nil {
		return err
	}
	c.sess = sess
	c.sessProxy = ep
	c.logger.Info("session rotated onto proxy", zap.String("proxy", ep.String()))
	return nil
}

func (c *Checker) logAttempt(number kvk.Number, attempt int, verdict classify.Verdict, reason classify.Reason) {
	fields := []zap.Field{
		zap.String("kvk", number.String()),
		zap.Int("attempt", attempt+1),
		zap.String("proxy", c.sessProxy.String()),
		zap.Stringer("verdict", verdict),
	}
	if reason == classify.ReasonTitleMarker {
		// The title marker is the strongest block signal; call it out
		// apart from the weaker heuristics.
		c.logger.Warn("rate limit detected in page title", fields...)
		return
	}
	if verdict == classify.VerdictRateLimited {
		c.logger.Warn("rate limit detected", append(fields, zap.String("reason", string(reason)))...)
		return
	}
	c.logger.Debug("page classified", fields...)
}

// Package proxy maintains the set of outbound proxy endpoints the
// fetcher rotates through when the registry rate-limits a session.
// The pool is refreshed wholesale: candidates are scraped from a
// public listing, validated concurrently against the target site, and
// replace the previous set atomically.
package proxy

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jvanderlaan/branchscan/internal/metrics"
)

// Endpoint is a host:port pair believed reachable through the target
// site at validation time.
type Endpoint string

// URL renders the endpoint as an http proxy URL.
func (e Endpoint) URL() string { return "http://" + string(e) }

// Config controls refresh and validation behavior.
type Config struct {
	// TargetURL is probed through each candidate during validation.
	TargetURL string
	// RefreshInterval is the staleness bound after which the whole set
	// is discarded and rebuilt. Defaults to 30 minutes.
	RefreshInterval time.Duration
	// ProbeTimeout bounds each validation probe. Defaults to 10s.
	ProbeTimeout time.Duration
	// Workers bounds validation concurrency. Defaults to 10.
	Workers int
	// MinEndpoints only affects logging: refreshes that validate fewer
	// endpoints are warned about, matching operator expectations.
	MinEndpoints int
}

// Pool hands out validated endpoints, lazily refreshing the set when
// it is empty or stale.
type Pool struct {
	source Source
	cfg    Config
	logger *zap.Logger

	// probe is swapped out in tests.
	probe func(ctx context.Context, ep Endpoint) bool

	mu          sync.Mutex
	endpoints   []Endpoint
	lastRefresh time.Time
}

// NewPool builds a Pool over the given candidate source.
func NewPool(source Source, cfg Config, logger *zap.Logger) *Pool {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.MinEndpoints <= 0 {
		cfg.MinEndpoints = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
	p.probe = p.probeEndpoint
	return p
}

// Acquire returns a random validated endpoint, refreshing the pool
// first when it is empty or older than the refresh interval. ok is
// false when no proxy is available; callers must treat that as "no
// proxy", not as an error.
func (p *Pool) Acquire(ctx context.Context) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.endpoints) == 0 || time.Since(p.lastRefresh) > p.cfg.RefreshInterval {
		p.refreshLocked(ctx)
	}
	if len(p.endpoints) == 0 {
		return "", false
	}
	return p.endpoints[rand.Intn(len(p.endpoints))], true
}

// refreshLocked rebuilds the endpoint set. The refresh timestamp is
// recorded even when zero candidates validate, so repeated failed
// refreshes stay bounded by the interval.
func (p *Pool) refreshLocked(ctx context.Context) {
	start := time.Now()
	defer func() { p.lastRefresh = time.Now() }()

	candidates, err := p.source.Candidates(ctx)
	if err != nil {
		p.logger.Error("proxy candidate fetch failed", zap.Error(err))
		p.endpoints = nil
		metrics.SetProxyPoolSize(0)
		metrics.ObserveProxyRefresh("empty", time.Since(start).Seconds())
		return
	}

	valid := p.validate(ctx, candidates)
	p.endpoints = valid
	metrics.SetProxyPoolSize(len(valid))

	result := "ok"
	if len(valid) == 0 {
		result = "empty"
	}
	metrics.ObserveProxyRefresh(result, time.Since(start).Seconds())

	if len(valid) < p.cfg.MinEndpoints {
		p.logger.Warn("proxy pool refreshed below minimum",
			zap.Int("candidates", len(candidates)),
			zap.Int("valid", len(valid)),
			zap.Int("min", p.cfg.MinEndpoints),
		)
		return
	}
	p.logger.Info("proxy pool refreshed",
		zap.Int("candidates", len(candidates)),
		zap.Int("valid", len(valid)),
		zap.Duration("took", time.Since(start)),
	)
}

// validate probes all candidates concurrently with bounded workers.
// Survivors are collected over a channel; no shared slice is written
// from the workers.
func (p *Pool) validate(ctx context.Context, candidates []Endpoint) []Endpoint {
	results := make(chan Endpoint, len(candidates))

	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for _, ep := range candidates {
		ep := ep
		g.Go(func() error {
			if p.probe(ctx, ep) {
				results <- ep
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	valid := make([]Endpoint, 0, len(candidates))
	for ep := range results {
		valid = append(valid, ep)
	}
	return valid
}

// probeEndpoint issues one lightweight request to the target site
// through ep. Valid iff the probe returns a success status within the
// timeout.
func (p *Pool) probeEndpoint(ctx context.Context, ep Endpoint) bool {
	proxyURL, err := url.Parse(ep.URL())
	if err != nil {
		return false
	}

	client := &http.Client{
		Timeout: p.cfg.ProbeTimeout,
		Transport: &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			DisableKeepAlives: true,
		},
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.cfg.TargetURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Size reports the current validated set size without refreshing.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.endpoints)
}

// String implements fmt.Stringer for log fields.
func (e Endpoint) String() string { return string(e) }

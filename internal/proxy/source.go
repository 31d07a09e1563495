package proxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocolly/colly/v2"
)

// DefaultSourceURL is the public listing the pool scrapes candidates
// from.
const DefaultSourceURL = "https://free-proxy-list.net/"

// Source yields candidate endpoints for validation.
type Source interface {
	Candidates(ctx context.Context) ([]Endpoint, error)
}

// ListSource scrapes a free-proxy-list style HTML table. Only rows
// flagged HTTPS-capable are kept, since the registry is served over
// TLS.
type ListSource struct {
	URL       string
	UserAgent string
}

// Candidates fetches and parses the listing page. The returned set is
// deduplicated but otherwise unordered.
func (s *ListSource) Candidates(ctx context.Context) ([]Endpoint, error) {
	url := s.URL
	if url == "" {
		url = DefaultSourceURL
	}

	c := colly.NewCollector()
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}

	seen := make(map[Endpoint]struct{})
	var candidates []Endpoint
	c.OnHTML("table tbody tr", func(e *colly.HTMLElement) {
		cells := e.ChildTexts("td")
		// IP, port, code, country, anonymity, google, https, checked
		if len(cells) < 7 || strings.TrimSpace(cells[6]) != "yes" {
			return
		}
		ep := Endpoint(strings.TrimSpace(cells[0]) + ":" + strings.TrimSpace(cells[1]))
		if _, dup := seen[ep]; dup {
			return
		}
		seen[ep] = struct{}{}
		candidates = append(candidates, ep)
	})

	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy listing fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("fetch proxy listing %s: %w", url, err)
		}
	}
	return candidates, nil
}

package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	mu        sync.Mutex
	calls     int
	endpoints []Endpoint
	err       error
}

func (s *fakeSource) Candidates(_ context.Context) ([]Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]Endpoint(nil), s.endpoints...), nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func acceptAll(_ context.Context, _ Endpoint) bool { return false }

func newTestPool(source Source, probe func(context.Context, Endpoint) bool) *Pool {
	p := NewPool(source, Config{TargetURL: "https://example.com"}, zap.NewNop())
	if probe != nil {
		p.probe = probe
	}
	return p
}

func TestPool_AcquireRefreshesWhenEmpty(t *testing.T) {
	t.Parallel()

	source := &fakeSource{endpoints: []Endpoint{"10.0.0.1:8080", "10.0.0.2:8080"}}
	p := newTestPool(source, func(_ context.Context, _ Endpoint) bool { return true })

	ep, ok := p.Acquire(context.Background())
	require.True(t, ok)
	require.Contains(t, []Endpoint{"10.0.0.1:8080", "10.0.0.2:8080"}, ep)
	require.Equal(t, 1, source.callCount())
	require.Equal(t, 2, p.Size())

	// A warm, fresh pool must not refresh again.
	_, ok = p.Acquire(context.Background())
	require.True(t, ok)
	require.Equal(t, 1, source.callCount())
}

func TestPool_ValidationFiltersFailures(t *testing.T) {
	t.Parallel()

	source := &fakeSource{endpoints: []Endpoint{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080"}}
	p := newTestPool(source, func(_ context.Context, ep Endpoint) bool {
		return ep == "10.0.0.2:8080"
	})

	ep, ok := p.Acquire(context.Background())
	require.True(t, ok)
	require.Equal(t, Endpoint("10.0.0.2:8080"), ep)
	require.Equal(t, 1, p.Size())
}

func TestPool_EmptyValidationStillRecordsRefresh(t *testing.T) {
	t.Parallel()

	source := &fakeSource{endpoints: []Endpoint{"10.0.0.1:8080"}}
	p := newTestPool(source, acceptAll)

	_, ok := p.Acquire(context.Background())
	require.False(t, ok)
	require.Equal(t, 1, source.callCount())

	// Within the refresh interval an empty pool must not trigger
	// another full refresh cycle.
	_, ok = p.Acquire(context.Background())
	require.False(t, ok)
	require.Equal(t, 1, source.callCount())
}

func TestPool_StaleSetIsRebuilt(t *testing.T) {
	t.Parallel()

	source := &fakeSource{endpoints: []Endpoint{"10.0.0.1:8080"}}
	p := newTestPool(source, func(_ context.Context, _ Endpoint) bool { return true })

	_, ok := p.Acquire(context.Background())
	require.True(t, ok)
	require.Equal(t, 1, source.callCount())

	// Age the pool past the staleness bound.
	p.mu.Lock()
	p.lastRefresh = time.Now().Add(-31 * time.Minute)
	p.mu.Unlock()

	_, ok = p.Acquire(context.Background())
	require.True(t, ok)
	require.Equal(t, 2, source.callCount())
}

func TestPool_SourceErrorYieldsEmptyPool(t *testing.T) {
	t.Parallel()

	source := &fakeSource{err: errors.New("listing down")}
	p := newTestPool(source, nil)

	_, ok := p.Acquire(context.Background())
	require.False(t, ok)
}

func TestPool_ConcurrentValidationCollectsAll(t *testing.T) {
	t.Parallel()

	var endpoints []Endpoint
	for i := 0; i < 40; i++ {
		endpoints = append(endpoints, Endpoint(fmt.Sprintf("10.0.0.%d:8080", i)))
	}
	source := &fakeSource{endpoints: endpoints}
	p := newTestPool(source, func(_ context.Context, _ Endpoint) bool { return true })

	_, ok := p.Acquire(context.Background())
	require.True(t, ok)
	require.Equal(t, len(endpoints), p.Size())
}

func TestListSource_ParsesHTTPSRows(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><table><thead>
			<tr><th>IP</th><th>Port</th><th>Code</th><th>Country</th><th>Anonymity</th><th>Google</th><th>Https</th><th>Last Checked</th></tr>
			</thead><tbody>
			<tr><td>192.168.1.1</td><td>8080</td><td>NL</td><td>Netherlands</td><td>anonymous</td><td>yes</td><td>yes</td><td>1 minute ago</td></tr>
			<tr><td>192.168.1.2</td><td>8080</td><td>NL</td><td>Netherlands</td><td>anonymous</td><td>yes</td><td>no</td><td>1 minute ago</td></tr>
			<tr><td>192.168.1.1</td><td>8080</td><td>NL</td><td>Netherlands</td><td>anonymous</td><td>yes</td><td>yes</td><td>2 minutes ago</td></tr>
			</tbody></table></body></html>`))
	}))
	t.Cleanup(srv.Close)

	source := &ListSource{URL: srv.URL}
	candidates, err := source.Candidates(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Endpoint{"192.168.1.1:8080"}, candidates)
}

func TestProbeEndpoint_SuccessStatusOnly(t *testing.T) {
	t.Parallel()

	// The probe goes through the endpoint as an HTTP proxy; a plain
	// server sees the absolute-URI request and can answer for it.
	var status int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	p := NewPool(&fakeSource{}, Config{
		TargetURL:    "http://registry.invalid/",
		ProbeTimeout: 2 * time.Second,
	}, zap.NewNop())
	ep := Endpoint(srv.Listener.Addr().String())

	status = http.StatusOK
	require.True(t, p.probeEndpoint(context.Background(), ep))

	status = http.StatusTooManyRequests
	require.False(t, p.probeEndpoint(context.Background(), ep))
}

func TestProbeEndpoint_UnreachableProxy(t *testing.T) {
	t.Parallel()

	p := NewPool(&fakeSource{}, Config{
		TargetURL:    "http://registry.invalid/",
		ProbeTimeout: 200 * time.Millisecond,
	}, zap.NewNop())

	require.False(t, p.probeEndpoint(context.Background(), Endpoint("127.0.0.1:1")))
}

package connectivity

import (
	"context"
	"net/http"
	"time"
)

// DefaultProbeInterval is how often the probe re-checks reachability.
const DefaultProbeInterval = 15 * time.Second

// Probe is a polling connectivity source for platforms without a native
// reachability signal. It issues HEAD requests against a health endpoint
// and pushes the result into a Monitor.
type Probe struct {
	url      string
	client   *http.Client
	interval time.Duration
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) ProbeOption {
	return func(p *Probe) {
		p.interval = d
	}
}

// WithHTTPClient overrides the HTTP client, for tests.
func WithHTTPClient(c *http.Client) ProbeOption {
	return func(p *Probe) {
		p.client = c
	}
}

// NewProbe creates a probe against the given health URL.
func NewProbe(url string, opts ...ProbeOption) *Probe {
	p := &Probe{
		url:      url,
		client:   &http.Client{Timeout: 5 * time.Second},
		interval: DefaultProbeInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until the context is cancelled, pushing observations into the
// monitor. An unconfigured probe (empty URL) pushes nothing at all, leaving
// the monitor at its fail-open default rather than reporting a false
// offline.
func (p *Probe) Run(ctx context.Context, m *Monitor) {
	if p.url == "" {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	m.Set(p.check(ctx))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Set(p.check(ctx))
		}
	}
}

// check performs one reachability test. Any response at all, including a
// server error, proves the network path works; only a transport-level
// failure counts as offline.
func (p *Probe) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		// Misconfigured URL: fail open rather than trap screens offline.
		return true
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Package gateway is the single entry point screens use to read or write
// remote data.
//
// It composes the connectivity monitor, the cache, the mutation queue, and
// the invalidator into two uniform operations: Read degrades to stale cache
// when the network is unavailable, and Write follows a three-way branch -
// succeed, queue, or reject - that never silently drops a user-initiated
// write and never retries one the server has definitively rejected.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trailhq/trailsync/internal/cache"
	"github.com/trailhq/trailsync/internal/connectivity"
	"github.com/trailhq/trailsync/internal/fingerprint"
	"github.com/trailhq/trailsync/internal/invalidate"
	"github.com/trailhq/trailsync/internal/queue"
)

// DefaultTTLSeconds is the freshness window for cached responses when no
// other value is configured.
const DefaultTTLSeconds = 300

// DefaultRetryDelay is how long after a failed replay cycle the next
// automatic cycle is scheduled.
const DefaultRetryDelay = 30 * time.Second

// ReadResult is a uniform read outcome. FromCache marks degraded data so
// every consumer renders the offline/cached indicator the same way.
type ReadResult struct {
	Data      json.RawMessage
	FromCache bool
}

// WriteResult is a uniform write outcome. Queued means the write was
// accepted locally and will sync when connectivity returns; MutationID
// identifies the queue entry for "will sync" feedback.
type WriteResult struct {
	Queued     bool
	MutationID string
}

// Gateway routes reads and writes between the network, the cache, and the
// mutation queue.
type Gateway struct {
	baseURL string
	client  *http.Client
	monitor *connectivity.Monitor
	cache   *cache.Store
	queue   *queue.Queue
	inval   *invalidate.Invalidator
	gen     queue.IDGenerator
	logger  *slog.Logger

	ttlSeconds int64
	retryDelay time.Duration

	replaying chan struct{} // size 1; holds the single-flight replay slot
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the HTTP client, for tests and custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithTTL sets the cache freshness window for responses.
func WithTTL(seconds int64) Option {
	return func(g *Gateway) {
		g.ttlSeconds = seconds
	}
}

// WithRetryDelay sets the delay before the automatic cycle after a replay
// failure. Zero disables automatic retry cycles (tests drive Replay directly).
func WithRetryDelay(d time.Duration) Option {
	return func(g *Gateway) {
		g.retryDelay = d
	}
}

// WithIDGenerator overrides idempotency-key generation, for deterministic tests.
func WithIDGenerator(gen queue.IDGenerator) Option {
	return func(g *Gateway) {
		g.gen = gen
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// New creates a gateway. Call Start to wire replay to connectivity
// transitions.
func New(baseURL string, m *connectivity.Monitor, c *cache.Store, q *queue.Queue, inv *invalidate.Invalidator, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     &http.Client{Timeout: 15 * time.Second},
		monitor:    m,
		cache:      c,
		queue:      q,
		inval:      inv,
		gen:        queue.UUIDv7Generator{},
		logger:     slog.Default(),
		ttlSeconds: DefaultTTLSeconds,
		retryDelay: DefaultRetryDelay,
		replaying:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start subscribes the gateway to connectivity transitions: every
// offline→online transition triggers a replay cycle. Returns the
// unsubscribe func.
func (g *Gateway) Start(ctx context.Context) connectivity.Unsubscribe {
	return g.monitor.Subscribe(func(online bool) {
		if online {
			go func() {
				if err := g.Replay(ctx); err != nil {
					g.logger.Warn("replay cycle failed", "error", err)
				}
			}()
		}
	})
}

// Foreground runs a replay cycle if the device is online. Call on app
// foreground so mutations queued before a background kill still sync.
func (g *Gateway) Foreground(ctx context.Context) error {
	if !g.monitor.IsOnline() {
		return nil
	}
	return g.Replay(ctx)
}

// Read fetches an endpoint, preferring fresh network data.
//
//  1. Online: attempt the network. Success refreshes the cache and returns
//     FromCache=false. Transient failure falls through to cache. Auth and
//     permanent failures surface immediately - stale data must not mask a
//     request the server actually rejected.
//  2. Cache: fresh or stale, return FromCache=true.
//  3. Neither: a NOT_AVAILABLE_OFFLINE error.
func (g *Gateway) Read(ctx context.Context, endpoint string, params map[string]string) (ReadResult, error) {
	fp := fingerprint.Compute(endpoint, params)

	var netErr error
	if g.monitor.IsOnline() {
		data, err := g.fetch(ctx, endpoint, params)
		if err == nil {
			if putErr := g.cache.Put(ctx, fp, data, g.ttlSeconds); putErr != nil {
				// A cache write failure degrades future offline reads but
				// must not fail this one.
				g.logger.Warn("cache refresh failed", "fingerprint", fp, "error", putErr)
			}
			return ReadResult{Data: data, FromCache: false}, nil
		}
		if IsAuth(err) || IsPermanent(err) {
			return ReadResult{}, err
		}
		netErr = err
	}

	if entry, ok := g.cache.Get(ctx, fp); ok {
		return ReadResult{Data: entry.Payload, FromCache: true}, nil
	}

	return ReadResult{}, &RequestError{
		Kind:     KindNotAvailableOffline,
		Endpoint: endpoint,
		Err:      netErr,
	}
}

// Write sends a mutation, queueing it when the network cannot take it.
//
// Online: the request goes out under a fresh idempotency key.
//   - Success: the entity's cache entries are invalidated before the result
//     is returned, so a read immediately after never sees pre-write data.
//   - Transient failure: queued under the same key (the attempt may have
//     landed server-side) and reported as Queued.
//   - Auth or permanent failure: returned as an error, never queued.
//
// Offline: queued immediately and reported as Queued.
func (g *Gateway) Write(ctx context.Context, endpoint, method string, body json.RawMessage, entityType string) (WriteResult, error) {
	id := g.gen.Generate()

	if !g.monitor.IsOnline() {
		return g.enqueue(ctx, id, endpoint, method, body, entityType)
	}

	err := g.send(ctx, id, endpoint, method, body)
	if err == nil {
		if invErr := g.inval.Invalidate(ctx, entityType); invErr != nil {
			g.logger.Warn("invalidation after write failed",
				"entity", entityType, "error", invErr)
		}
		return WriteResult{}, nil
	}

	if IsAuth(err) || IsPermanent(err) {
		return WriteResult{}, err
	}

	// Transient: the user's write is accepted locally instead of dropped.
	return g.enqueue(ctx, id, endpoint, method, body, entityType)
}

// enqueue stores a mutation and reports it as queued.
func (g *Gateway) enqueue(ctx context.Context, id, endpoint, method string, body json.RawMessage, entityType string) (WriteResult, error) {
	m, err := g.queue.EnqueueWithID(ctx, id, endpoint, method, body, entityType)
	if err != nil {
		return WriteResult{}, fmt.Errorf("queue write: %w", err)
	}
	return WriteResult{Queued: true, MutationID: m.ID}, nil
}

// fetch performs one GET and returns the response payload.
func (g *Gateway) fetch(ctx context.Context, endpoint string, params map[string]string) (json.RawMessage, error) {
	u := g.baseURL + endpoint
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &RequestError{Kind: KindTransient, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			Kind:     classifyStatus(resp.StatusCode),
			Endpoint: endpoint,
			Status:   resp.StatusCode,
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Kind: KindTransient, Endpoint: endpoint, Err: err}
	}
	return data, nil
}

// send performs one mutation call under an idempotency key.
func (g *Gateway) send(ctx context.Context, idempotencyKey, endpoint, method string, body json.RawMessage) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &RequestError{Kind: KindTransient, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{
			Kind:     classifyStatus(resp.StatusCode),
			Endpoint: endpoint,
			Status:   resp.StatusCode,
		}
	}
	return nil
}

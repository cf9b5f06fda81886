package testutil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// RoundTripFunc adapts a function to http.RoundTripper.
type RoundTripFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// JSONResponse builds an *http.Response with a JSON body and status code.
func JSONResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

// ScriptedTransport replays a fixed sequence of outcomes, one per request,
// and records every request it sees. This enables deterministic replay tests:
// a known run of failures followed by a success, with exact call-order
// assertions afterwards.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type ScriptedTransport struct {
	mu       sync.Mutex
	outcomes []Outcome
	idx      int

	// Requests records method, URL path, and Idempotency-Key of each call.
	Requests []RecordedRequest
}

// Outcome is one scripted transport result.
type Outcome struct {
	Status int
	Body   string
	Err    error // non-nil simulates a network-level failure
}

// RecordedRequest captures the parts of a request that tests assert on.
type RecordedRequest struct {
	Method         string
	Path           string
	IdempotencyKey string
	Body           string
}

// NewScriptedTransport creates a transport that returns the outcomes in order.
// When the script is exhausted, further requests panic. This is fail-fast for
// test misconfiguration (the test made more calls than it scripted).
func NewScriptedTransport(outcomes ...Outcome) *ScriptedTransport {
	return &ScriptedTransport{outcomes: outcomes}
}

// RoundTrip implements http.RoundTripper.
func (t *ScriptedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var body string
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("scripted transport: read body: %w", err)
		}
		body = string(raw)
	}
	t.Requests = append(t.Requests, RecordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Body:           body,
	})

	if t.idx >= len(t.outcomes) {
		panic("ScriptedTransport: all outcomes exhausted")
	}
	out := t.outcomes[t.idx]
	t.idx++

	if out.Err != nil {
		return nil, out.Err
	}
	return JSONResponse(out.Status, out.Body), nil
}

// CallCount returns how many requests the transport has served.
func (t *ScriptedTransport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Requests)
}

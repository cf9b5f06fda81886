// Package queue is the durable offline mutation queue.
//
// Writes made while offline (or failing transiently) are appended here and
// replayed strictly in creation order once connectivity returns. The queue
// never reorders: a later mutation is not attempted before an earlier one
// has reached a terminal state. After MaxAttempts failures a mutation stops
// auto-retrying and is surfaced as failed-permanent for manual resolution.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/trailhq/trailsync/internal/clock"
	"github.com/trailhq/trailsync/internal/store"
)

// DefaultMaxAttempts is how many replay failures a mutation absorbs before
// transitioning to failed-permanent.
const DefaultMaxAttempts = 5

// Mutation re-exports the storage row type; the queue package owns its
// lifecycle (status transitions, attempt budget).
type Mutation = store.Mutation

// Queue is the ordered, durable list of pending write operations.
type Queue struct {
	db          *store.Store
	clock       clock.Clock
	gen         IDGenerator
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the wall clock used for CreatedAt stamps.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithIDGenerator overrides mutation ID generation, for deterministic tests.
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.gen = g
	}
}

// WithMaxAttempts sets the retry budget before failed-permanent.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		q.maxAttempts = n
	}
}

// WithLogger sets the logger for queue lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// New creates a queue over the durable store.
func New(db *store.Store, opts ...Option) *Queue {
	q := &Queue{
		db:          db,
		clock:       clock.System{},
		gen:         UUIDv7Generator{},
		maxAttempts: DefaultMaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// validMethods are the mutation verbs the queue accepts.
var validMethods = map[string]bool{
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// Enqueue appends a write to the queue and returns the durable record.
func (q *Queue) Enqueue(ctx context.Context, endpoint, method string, body json.RawMessage, entityType string) (Mutation, error) {
	return q.EnqueueWithID(ctx, q.gen.Generate(), endpoint, method, body, entityType)
}

// EnqueueWithID appends a write under a caller-supplied ID.
//
// The gateway uses this when a direct network attempt already went out
// under an idempotency key: queueing under the same ID means the replay
// reuses that key, so a call that actually succeeded server-side but whose
// acknowledgement was lost is not double-applied.
func (q *Queue) EnqueueWithID(ctx context.Context, id, endpoint, method string, body json.RawMessage, entityType string) (Mutation, error) {
	if !validMethods[method] {
		return Mutation{}, fmt.Errorf("enqueue: unsupported method %q", method)
	}

	m := Mutation{
		ID:         id,
		Endpoint:   endpoint,
		Method:     method,
		Body:       body,
		EntityType: entityType,
		CreatedAt:  q.clock.Now(),
		Status:     store.StatusPending,
	}
	if err := q.db.InsertMutation(ctx, m); err != nil {
		return Mutation{}, err
	}

	// Read back to pick up the assigned seq.
	queued, err := q.db.GetMutation(ctx, m.ID)
	if err != nil {
		return Mutation{}, err
	}

	q.logger.Info("mutation queued",
		"id", queued.ID, "method", method, "endpoint", endpoint, "entity", entityType)
	return queued, nil
}

// ListPending returns mutations awaiting replay, in creation order.
//
// Entries left in-flight by an interrupted cycle are included: the device
// may have crashed between the network call and the acknowledgement, and
// idempotent replay (the ID travels as the idempotency key) makes
// re-attempting safe.
func (q *Queue) ListPending(ctx context.Context) ([]Mutation, error) {
	return q.db.ListMutations(ctx, store.StatusPending, store.StatusInFlight)
}

// ListFailed returns failed-permanent mutations surfaced for manual
// resolution, in creation order.
func (q *Queue) ListFailed(ctx context.Context) ([]Mutation, error) {
	return q.db.ListMutations(ctx, store.StatusFailedPermanent)
}

// ListAll returns the whole queue in creation order, for diagnostics.
func (q *Queue) ListAll(ctx context.Context) ([]Mutation, error) {
	return q.db.ListMutations(ctx)
}

// MarkInFlight records that a replay cycle is attempting the mutation.
func (q *Queue) MarkInFlight(ctx context.Context, id string) error {
	return q.db.UpdateMutationStatus(ctx, id, store.StatusInFlight)
}

// MarkSucceeded removes a successfully replayed mutation. Idempotent:
// acknowledging an already-removed mutation is a no-op.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	return q.db.DeleteMutation(ctx, id)
}

// MarkFailed increments the attempt counter and returns the updated record.
// At the attempt budget the mutation transitions to failed-permanent and
// stops auto-retrying; otherwise it returns to pending for the next cycle.
func (q *Queue) MarkFailed(ctx context.Context, id string) (Mutation, error) {
	m, err := q.db.RecordMutationFailure(ctx, id, q.maxAttempts)
	if err != nil {
		return Mutation{}, err
	}

	if m.Status == store.StatusFailedPermanent {
		q.logger.Warn("mutation exhausted retries, needs manual resolution",
			"id", m.ID, "endpoint", m.Endpoint, "attempts", m.Attempts)
	}
	return m, nil
}

// MarkRejected transitions a mutation straight to failed-permanent,
// bypassing the attempt budget. Used when the server definitively rejected
// the write during replay: retrying a request the server has already
// rejected as invalid would never succeed.
func (q *Queue) MarkRejected(ctx context.Context, id string) error {
	if err := q.db.UpdateMutationStatus(ctx, id, store.StatusFailedPermanent); err != nil {
		return err
	}
	q.logger.Warn("mutation rejected by server, needs manual resolution", "id", id)
	return nil
}

// Retry returns a failed-permanent mutation to pending with a fresh attempt
// budget. This is the manual-resolution path.
func (q *Queue) Retry(ctx context.Context, id string) error {
	m, err := q.db.GetMutation(ctx, id)
	if err != nil {
		return err
	}
	if m.Status != store.StatusFailedPermanent {
		return fmt.Errorf("retry: mutation %s is %s, only failed-permanent can be retried", id, m.Status)
	}
	return q.db.RequeueMutation(ctx, id)
}

// MaxAttempts returns the configured retry budget.
func (q *Queue) MaxAttempts() int {
	return q.maxAttempts
}

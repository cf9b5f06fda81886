package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhq/trailsync/internal/store"
	"github.com/trailhq/trailsync/internal/testutil"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "trailsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := []Option{
		WithClock(testutil.NewClock(time.UnixMilli(1700000000000))),
		WithIDGenerator(NewFixedGenerator("mut-1", "mut-2", "mut-3", "mut-4", "mut-5")),
	}
	return New(db, append(base, opts...)...)
}

func TestEnqueue_AssignsIDAndSeq(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/participants/7", "PUT", json.RawMessage(`{"name":"Robin"}`), "participant")
	require.NoError(t, err)

	assert.Equal(t, "mut-1", m.ID)
	assert.NotZero(t, m.Seq)
	assert.Equal(t, store.StatusPending, m.Status)
	assert.Equal(t, 0, m.Attempts)
	assert.Equal(t, time.UnixMilli(1700000000000), m.CreatedAt)
}

func TestEnqueue_RejectsUnsupportedMethod(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "/participants", "GET", nil, "participant")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported method")
}

func TestListPending_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, ep := range []string{"/a", "/b", "/c"} {
		_, err := q.Enqueue(ctx, ep, "POST", json.RawMessage(`{}`), "participant")
		require.NoError(t, err)
	}

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "/a", pending[0].Endpoint)
	assert.Equal(t, "/b", pending[1].Endpoint)
	assert.Equal(t, "/c", pending[2].Endpoint)
}

func TestListPending_IncludesInterruptedInFlight(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)
	require.NoError(t, q.MarkInFlight(ctx, m.ID))

	// Simulates an interrupted cycle: the in-flight entry must be retried.
	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, store.StatusInFlight, pending[0].Status)
}

func TestMarkSucceeded_RemovesEntry(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)

	require.NoError(t, q.MarkSucceeded(ctx, m.ID))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Re-acknowledging is idempotent.
	assert.NoError(t, q.MarkSucceeded(ctx, m.ID))
}

func TestMarkFailed_ReturnsToPendingBelowBudget(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)
	require.NoError(t, q.MarkInFlight(ctx, m.ID))

	updated, err := q.MarkFailed(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Attempts)
	assert.Equal(t, store.StatusPending, updated.Status)
}

func TestMarkFailed_TransitionsToFailedPermanentAtBudget(t *testing.T) {
	q := newTestQueue(t, WithMaxAttempts(3))
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)

	var updated Mutation
	for i := 0; i < 3; i++ {
		updated, err = q.MarkFailed(ctx, m.ID)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, updated.Attempts)
	assert.Equal(t, store.StatusFailedPermanent, updated.Status)

	// Failed-permanent entries leave the replay set but stay visible.
	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := q.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, m.ID, failed[0].ID)
}

func TestRetry_RequeuesFailedPermanent(t *testing.T) {
	q := newTestQueue(t, WithMaxAttempts(1))
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)
	_, err = q.MarkFailed(ctx, m.ID)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, m.ID))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].Attempts)
	assert.Equal(t, store.StatusPending, pending[0].Status)
}

func TestRetry_RejectsPendingMutation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "/a", "POST", json.RawMessage(`{}`), "participant")
	require.NoError(t, err)

	err = q.Retry(ctx, m.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only failed-permanent")
}

func TestUUIDv7Generator_UniqueAndSortable(t *testing.T) {
	gen := UUIDv7Generator{}

	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		id := gen.Generate()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		if prev != "" {
			assert.GreaterOrEqual(t, id, prev, "UUIDv7 ids should sort by creation time")
		}
		prev = id
	}
}

func TestFixedGenerator_PanicsWhenExhausted(t *testing.T) {
	gen := NewFixedGenerator("only-one")
	assert.Equal(t, "only-one", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

package permission

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhq/trailsync/internal/store"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *store.Store) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "trailsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), db
}

func TestCan_NoRequirement(t *testing.T) {
	e, _ := newTestEvaluator(t)

	assert.True(t, e.Can(Descriptor{Key: "home.open"}),
		"a descriptor with no requirement is always visible")
}

func TestCan_SinglePermission(t *testing.T) {
	e, _ := newTestEvaluator(t)
	require.NoError(t, e.ReplaceAll(context.Background(), []string{"finance.view"}))

	assert.True(t, e.Can(Descriptor{Key: "finance.open", RequiredPermission: "finance.view"}))
	assert.False(t, e.Can(Descriptor{Key: "finance.edit", RequiredPermission: "finance.manage"}))
}

func TestCan_AnyOf(t *testing.T) {
	e, _ := newTestEvaluator(t)
	require.NoError(t, e.ReplaceAll(context.Background(), []string{"finance.view"}))

	assert.True(t, e.Can(Descriptor{
		Key:           "finance.tab",
		RequiredAnyOf: []string{"finance.manage", "finance.view"},
	}))
	assert.False(t, e.Can(Descriptor{
		Key:           "admin.tab",
		RequiredAnyOf: []string{"admin.roles", "admin.users"},
	}))
}

func TestCan_MalformedDescriptorDenied(t *testing.T) {
	e, _ := newTestEvaluator(t)
	require.NoError(t, e.ReplaceAll(context.Background(), []string{"finance.view"}))

	denied := Descriptor{
		Key:                "broken",
		RequiredPermission: "finance.view",
		RequiredAnyOf:      []string{"finance.view"},
	}
	assert.False(t, e.Can(denied),
		"a descriptor that cannot be evaluated must never render an action")
}

func TestCan_Monotonic(t *testing.T) {
	e, _ := newTestEvaluator(t)
	ctx := context.Background()

	descriptors := []Descriptor{
		{Key: "a"},
		{Key: "b", RequiredPermission: "finance.view"},
		{Key: "c", RequiredAnyOf: []string{"finance.manage", "finance.view"}},
	}

	require.NoError(t, e.ReplaceAll(ctx, []string{"finance.view"}))
	var before []bool
	for _, d := range descriptors {
		before = append(before, e.Can(d))
	}

	// Enlarge the set: nothing previously allowed may become denied.
	require.NoError(t, e.ReplaceAll(ctx, []string{"finance.view", "finance.manage", "admin.roles"}))
	for i, d := range descriptors {
		if before[i] {
			assert.True(t, e.Can(d), "enlarging the set denied %q", d.Key)
		}
	}
}

func TestReplaceAll_Wholesale(t *testing.T) {
	e, _ := newTestEvaluator(t)
	ctx := context.Background()

	require.NoError(t, e.ReplaceAll(ctx, []string{"finance.view"}))
	require.NoError(t, e.ReplaceAll(ctx, []string{"attendance.record"}))

	assert.False(t, e.Has("finance.view"), "old tokens do not survive a role change")
	assert.True(t, e.Has("attendance.record"))
}

func TestLoad_RestoresPersistedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trailsync.db")
	ctx := context.Background()

	db1, err := store.Open(path)
	require.NoError(t, err)
	e1 := New(db1)
	require.NoError(t, e1.ReplaceAll(ctx, []string{"finance.view", "attendance.record"}))
	db1.Close()

	db2, err := store.Open(path)
	require.NoError(t, err)
	defer db2.Close()

	e2 := New(db2)
	require.NoError(t, e2.Load(ctx))
	assert.Equal(t, []string{"attendance.record", "finance.view"}, e2.Tokens())
}

func TestLoad_MissingSnapshotLeavesEmptySet(t *testing.T) {
	e, _ := newTestEvaluator(t)

	require.NoError(t, e.Load(context.Background()))
	assert.Empty(t, e.Tokens())
}

func TestLoad_CorruptSnapshotDropped(t *testing.T) {
	e, db := newTestEvaluator(t)
	ctx := context.Background()

	require.NoError(t, db.PutValue(ctx, store.KeyPermissions, `{not json`))

	require.NoError(t, e.Load(ctx))
	assert.Empty(t, e.Tokens(), "corrupt snapshot reads as empty set")

	_, err := db.GetValue(ctx, store.KeyPermissions)
	assert.ErrorIs(t, err, store.ErrNotFound, "corrupt snapshot is removed")
}

func TestClear_RemovesSetAndSnapshot(t *testing.T) {
	e, db := newTestEvaluator(t)
	ctx := context.Background()

	require.NoError(t, e.ReplaceAll(ctx, []string{"finance.view"}))
	require.NoError(t, e.Clear(ctx))

	assert.Empty(t, e.Tokens())
	_, err := db.GetValue(ctx, store.KeyPermissions)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

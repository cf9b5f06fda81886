package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhq/trailsync/internal/cache"
	"github.com/trailhq/trailsync/internal/store"
)

func seedCacheDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	c := cache.New(st)
	require.NoError(t, c.Put(ctx, "/participants?org=42", json.RawMessage(`[{"id":1}]`), 300))
	require.NoError(t, c.Put(ctx, "/activities?org=42", json.RawMessage(`[]`), 300))
	return dbPath
}

func TestCacheLsMissingDatabaseFlag(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"ls"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestCacheLsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"ls", "--db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "cache is empty")
}

func TestCacheLsText(t *testing.T) {
	dbPath := seedCacheDB(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"ls", "--db", dbPath})

	require.NoError(t, cmd.Execute())
	output := buf.String()
	assert.Contains(t, output, "/participants?org=42")
	assert.Contains(t, output, "/activities?org=42")
	assert.Contains(t, output, "fresh")
}

func TestCacheLsJSON(t *testing.T) {
	dbPath := seedCacheDB(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"ls", "--db", dbPath})

	require.NoError(t, cmd.Execute())

	var views []cacheEntryView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)
	assert.True(t, views[0].Fresh)
	assert.Equal(t, int64(300), views[0].TTLSeconds)
}

func TestCacheRmRequiresExactlyOneSelector(t *testing.T) {
	dbPath := seedCacheDB(t)

	for _, args := range [][]string{
		{"rm", "--db", dbPath},
		{"rm", "--db", dbPath, "--fingerprint", "/x", "--expired"},
	} {
		buf := &bytes.Buffer{}
		rootOpts := &RootOptions{Format: "text"}
		cmd := NewCacheCommand(rootOpts)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)

		err := cmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one")
	}
}

func TestCacheRmFingerprint(t *testing.T) {
	dbPath := seedCacheDB(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"rm", "--db", dbPath, "--fingerprint", "/participants?org=42"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "dropped /participants?org=42")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	c := cache.New(st)
	_, ok := c.Get(context.Background(), "/participants?org=42")
	assert.False(t, ok)
	_, ok = c.Get(context.Background(), "/activities?org=42")
	assert.True(t, ok)
}

func TestCacheRmExpired(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	st, err := store.Open(dbPath)
	require.NoError(t, err)

	// One entry fetched an hour ago with a short window, one still fresh.
	require.NoError(t, st.PutCacheEntry(ctx, store.CacheEntry{
		Fingerprint: "/reports?org=42",
		Payload:     json.RawMessage(`{}`),
		FetchedAt:   time.Now().Add(-time.Hour),
		TTLSeconds:  60,
	}))
	c := cache.New(st)
	require.NoError(t, c.Put(ctx, "/participants?org=42", json.RawMessage(`[]`), 300))
	st.Close()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCacheCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"rm", "--db", dbPath, "--expired"})

	require.NoError(t, cmd.Execute())

	var result map[string]int64
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.Equal(t, int64(1), result["dropped"])
}

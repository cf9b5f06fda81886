package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is one cached API response addressed by its request fingerprint.
// At most one entry exists per fingerprint; PutCacheEntry replaces atomically.
type CacheEntry struct {
	Fingerprint string
	Payload     json.RawMessage
	FetchedAt   time.Time
	TTLSeconds  int64
}

// GetCacheEntry returns the entry for a fingerprint, or ErrNotFound.
func (s *Store) GetCacheEntry(ctx context.Context, fingerprint string) (CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, payload, fetched_at, ttl_seconds
		FROM cache_entries
		WHERE fingerprint = ?
	`, fingerprint)

	var (
		e         CacheEntry
		payload   string
		fetchedAt int64
	)
	err := row.Scan(&e.Fingerprint, &payload, &fetchedAt, &e.TTLSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, fmt.Errorf("get cache entry: %w", err)
	}

	e.Payload = json.RawMessage(payload)
	e.FetchedAt = time.UnixMilli(fetchedAt)
	return e, nil
}

// PutCacheEntry inserts or replaces the entry for its fingerprint.
// INSERT OR REPLACE keeps the one-entry-per-fingerprint invariant atomic.
func (s *Store) PutCacheEntry(ctx context.Context, e CacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cache_entries
		(fingerprint, payload, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
	`,
		e.Fingerprint,
		string(e.Payload),
		e.FetchedAt.UnixMilli(),
		e.TTLSeconds,
	)
	if err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntry removes the entry for a fingerprint.
// Deleting an absent fingerprint is a no-op, not an error.
func (s *Store) DeleteCacheEntry(ctx context.Context, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE fingerprint = ?
	`, fingerprint)
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntries removes a batch of fingerprints in one transaction so an
// invalidation either drops every dependent entry or none of them.
func (s *Store) DeleteCacheEntries(ctx context.Context, fingerprints []string) error {
	if len(fingerprints) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete cache entries: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, fp := range fingerprints {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cache_entries WHERE fingerprint = ?
		`, fp); err != nil {
			return fmt.Errorf("delete cache entries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete cache entries: commit: %w", err)
	}
	return nil
}

// ListCacheFingerprints returns every fingerprint currently cached, in
// deterministic order. Returns an empty slice (not nil) when the cache is empty.
func (s *Store) ListCacheFingerprints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint FROM cache_entries
		ORDER BY fingerprint ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list cache fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan cache fingerprint: %w", err)
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache fingerprints: %w", err)
	}

	if fps == nil {
		fps = []string{}
	}
	return fps, nil
}

// PurgeExpiredCache deletes entries whose freshness window ended before now.
// Returns the number of rows dropped. This is maintenance, not correctness:
// stale entries are still served as a degraded fallback until purged.
func (s *Store) PurgeExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries
		WHERE fetched_at + ttl_seconds * 1000 < ?
	`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired cache: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge expired cache: rows affected: %w", err)
	}
	return n, nil
}

// Package cache maps request fingerprints to cached API responses.
//
// Freshness is advisory: Get returns stale entries too, and the gateway
// decides whether stale is acceptable (when offline, stale beats nothing).
// Corrupt rows are treated as absent and dropped; the read path never fails
// because of storage damage.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/trailhq/trailsync/internal/clock"
	"github.com/trailhq/trailsync/internal/store"
)

// Entry is one cached response. Alias of the storage row type; the cache
// package owns its interpretation (freshness, corruption policy).
type Entry = store.CacheEntry

// Store is the fingerprint-addressed response cache.
type Store struct {
	db     *store.Store
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for deterministic freshness tests.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger for corruption and maintenance events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a cache over the durable store.
func New(db *store.Store, opts ...Option) *Store {
	s := &Store{
		db:     db,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for a fingerprint, fresh or stale.
//
// Never fails: a missing row, a storage error, or a corrupt payload all
// report absent. Corrupt payloads are additionally removed so they are not
// re-examined on every read, and storage errors are logged.
func (s *Store) Get(ctx context.Context, fp string) (Entry, bool) {
	entry, err := s.db.GetCacheEntry(ctx, fp)
	if err != nil {
		if err != store.ErrNotFound {
			s.logger.Warn("cache read failed, treating as miss",
				"fingerprint", fp, "error", err)
		}
		return Entry{}, false
	}

	if !json.Valid(entry.Payload) {
		s.logger.Warn("corrupt cache payload dropped", "fingerprint", fp)
		if err := s.db.DeleteCacheEntry(ctx, fp); err != nil {
			s.logger.Warn("failed to drop corrupt cache entry",
				"fingerprint", fp, "error", err)
		}
		return Entry{}, false
	}

	return entry, true
}

// Put atomically replaces the entry for a fingerprint.
func (s *Store) Put(ctx context.Context, fp string, payload json.RawMessage, ttlSeconds int64) error {
	return s.db.PutCacheEntry(ctx, Entry{
		Fingerprint: fp,
		Payload:     payload,
		FetchedAt:   s.clock.Now(),
		TTLSeconds:  ttlSeconds,
	})
}

// Invalidate drops one fingerprint. Absent fingerprints are a no-op.
func (s *Store) Invalidate(ctx context.Context, fp string) error {
	return s.db.DeleteCacheEntry(ctx, fp)
}

// InvalidateMany drops a batch of fingerprints atomically.
func (s *Store) InvalidateMany(ctx context.Context, fps []string) error {
	return s.db.DeleteCacheEntries(ctx, fps)
}

// Fingerprints lists every cached fingerprint, for invalidation pattern
// resolution and diagnostics.
func (s *Store) Fingerprints(ctx context.Context) ([]string, error) {
	return s.db.ListCacheFingerprints(ctx)
}

// IsFresh reports whether the entry is inside its freshness window:
// now - fetchedAt < ttl. Stale entries remain usable as a fallback.
func (s *Store) IsFresh(entry Entry) bool {
	age := s.clock.Now().Sub(entry.FetchedAt)
	return age < time.Duration(entry.TTLSeconds)*time.Second
}

// PurgeExpired removes entries past their freshness window. Maintenance
// only; correctness never depends on purging.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.db.PurgeExpiredCache(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged expired cache entries", "count", n)
	}
	return n, nil
}

// Package store provides durable on-device storage for the resilience layer.
//
// It backs three exclusive namespaces:
//
//   - cache_entries: cached API responses keyed by request fingerprint,
//     owned by the cache package
//   - mutation_queue: pending writes in replay order, owned by the queue package
//   - kv: the current permission snapshot and other singleton blobs
//
// SQLite is used with WAL mode and a single-writer connection pool. The
// device is the only writer to its own store, so no cross-process locking
// is needed; the server remains the arbiter of cross-device conflicts.
//
// All writes that participate in replay are idempotent (ON CONFLICT DO
// NOTHING on mutation IDs, INSERT OR REPLACE on fingerprints) so a crash
// between a network acknowledgement and the local bookkeeping can be
// safely repeated.
package store

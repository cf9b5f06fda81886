package invalidate

import (
	"context"
	"log/slog"

	"github.com/trailhq/trailsync/internal/cache"
)

// Invalidator applies a rule table to the live cache.
type Invalidator struct {
	table  *Table
	cache  *cache.Store
	logger *slog.Logger
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithLogger sets the logger for invalidation events.
func WithLogger(l *slog.Logger) Option {
	return func(inv *Invalidator) {
		inv.logger = l
	}
}

// New creates an invalidator over a cache with the given rule table.
func New(table *Table, c *cache.Store, opts ...Option) *Invalidator {
	inv := &Invalidator{
		table:  table,
		cache:  c,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invalidate drops every cached fingerprint the entity type's rules declare
// dependent on it. Mutating an unregistered entity type drops nothing and
// logs a warning: an unregistered type is a missing rule, and missing rules
// under-invalidate, which is the bug class this table exists to prevent.
func (inv *Invalidator) Invalidate(ctx context.Context, entityType string) error {
	if inv.table.Patterns(entityType) == nil {
		inv.logger.Warn("no invalidation rules for entity type, cache may be stale",
			"entity", entityType)
		return nil
	}

	fps, err := inv.cache.Fingerprints(ctx)
	if err != nil {
		return err
	}

	matched := inv.table.Resolve(entityType, fps)
	if len(matched) == 0 {
		return nil
	}

	if err := inv.cache.InvalidateMany(ctx, matched); err != nil {
		return err
	}
	inv.logger.Debug("cache invalidated", "entity", entityType, "dropped", len(matched))
	return nil
}

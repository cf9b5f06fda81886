// Package permission decides, per user, which actions are visible.
//
// The evaluator is an explicit instance constructed at session start and
// passed to consumers - never ambient module state. Its lifecycle follows
// the session: Load at app-resume, ReplaceAll on login or role change,
// Clear on logout. The current set is mirrored to the durable store so a
// restart resumes with the same permissions until the server says otherwise.
package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/trailhq/trailsync/internal/store"
)

// Descriptor is the declarative permission requirement attached to a UI
// action. Exactly one of RequiredPermission and RequiredAnyOf is set, or
// neither (meaning always visible). A descriptor with both set is
// malformed and always denied.
type Descriptor struct {
	Key                string
	RequiredPermission string
	RequiredAnyOf      []string
}

// Evaluator holds the current user's permission-token set.
type Evaluator struct {
	mu     sync.RWMutex
	tokens map[string]struct{}

	db     *store.Store
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		e.logger = l
	}
}

// New creates an evaluator with an empty set. Pass the durable store so the
// set survives restarts; callers then Load at startup.
func New(db *store.Store, opts ...Option) *Evaluator {
	e := &Evaluator{
		tokens: make(map[string]struct{}),
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Load restores the persisted snapshot. A missing or corrupt snapshot
// leaves the set empty (deny-by-default) rather than failing startup.
func (e *Evaluator) Load(ctx context.Context) error {
	raw, err := e.db.GetValue(ctx, store.KeyPermissions)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load permissions: %w", err)
	}

	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		e.logger.Warn("corrupt permission snapshot dropped", "error", err)
		if err := e.db.DeleteValue(ctx, store.KeyPermissions); err != nil {
			return fmt.Errorf("drop corrupt permission snapshot: %w", err)
		}
		return nil
	}

	e.mu.Lock()
	e.tokens = toSet(tokens)
	e.mu.Unlock()
	return nil
}

// ReplaceAll swaps the set wholesale and persists the new snapshot.
// Used at login and on role change.
func (e *Evaluator) ReplaceAll(ctx context.Context, tokens []string) error {
	snapshot, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}
	if err := e.db.PutValue(ctx, store.KeyPermissions, string(snapshot)); err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}

	e.mu.Lock()
	e.tokens = toSet(tokens)
	e.mu.Unlock()

	e.logger.Info("permission set replaced", "count", len(tokens))
	return nil
}

// Clear empties the set and removes the snapshot. Used at logout.
func (e *Evaluator) Clear(ctx context.Context) error {
	if err := e.db.DeleteValue(ctx, store.KeyPermissions); err != nil {
		return fmt.Errorf("clear permissions: %w", err)
	}

	e.mu.Lock()
	e.tokens = make(map[string]struct{})
	e.mu.Unlock()
	return nil
}

// Has reports whether the set contains one token.
func (e *Evaluator) Has(token string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tokens[token]
	return ok
}

// Can evaluates an action descriptor against the current set.
//
//   - Neither requirement field set: always allowed.
//   - RequiredPermission set: allowed iff the set contains it.
//   - RequiredAnyOf set: allowed iff the set intersects it.
//   - Both set (malformed): denied. A descriptor that cannot be evaluated
//     must never render an action.
func (e *Evaluator) Can(d Descriptor) bool {
	single := d.RequiredPermission != ""
	anyOf := len(d.RequiredAnyOf) > 0

	switch {
	case single && anyOf:
		e.logger.Warn("malformed action descriptor denied", "key", d.Key)
		return false
	case single:
		return e.Has(d.RequiredPermission)
	case anyOf:
		for _, token := range d.RequiredAnyOf {
			if e.Has(token) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Tokens returns a sorted snapshot of the current set.
func (e *Evaluator) Tokens() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, 0, len(e.tokens))
	for token := range e.tokens {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

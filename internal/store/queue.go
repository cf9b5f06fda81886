package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MutationStatus is the lifecycle state of a queued write.
type MutationStatus string

const (
	// StatusPending means the mutation is waiting for a replay cycle.
	StatusPending MutationStatus = "pending"
	// StatusInFlight means a replay cycle is currently attempting the mutation.
	StatusInFlight MutationStatus = "in-flight"
	// StatusFailedPermanent means the mutation exhausted its retry budget and
	// is surfaced for manual resolution instead of retrying forever.
	StatusFailedPermanent MutationStatus = "failed-permanent"
)

// Mutation is one durable queued write. Seq is assigned by SQLite on insert
// and is the replay order: strictly increasing, breaking CreatedAt ties.
type Mutation struct {
	Seq        int64
	ID         string
	Endpoint   string
	Method     string
	Body       json.RawMessage
	EntityType string
	CreatedAt  time.Time
	Attempts   int
	Status     MutationStatus
}

// InsertMutation appends a mutation to the queue.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - re-inserting the same
// mutation ID is silently ignored so a crash between enqueue and ack cannot
// duplicate a write.
func (s *Store) InsertMutation(ctx context.Context, m Mutation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutation_queue
		(id, endpoint, method, body, entity_type, created_at, attempts, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		m.ID,
		m.Endpoint,
		m.Method,
		string(m.Body),
		m.EntityType,
		m.CreatedAt.UnixMilli(),
		m.Attempts,
		string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("insert mutation: %w", err)
	}
	return nil
}

// GetMutation retrieves a single mutation by ID, or ErrNotFound.
func (s *Store) GetMutation(ctx context.Context, id string) (Mutation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, endpoint, method, body, entity_type, created_at, attempts, status
		FROM mutation_queue
		WHERE id = ?
	`, id)

	m, err := scanMutation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Mutation{}, ErrNotFound
	}
	if err != nil {
		return Mutation{}, fmt.Errorf("get mutation: %w", err)
	}
	return m, nil
}

// ListMutations returns every mutation with one of the given statuses in
// replay order (ORDER BY seq ASC). With no statuses, returns the whole queue.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListMutations(ctx context.Context, statuses ...MutationStatus) ([]Mutation, error) {
	query := `
		SELECT seq, id, endpoint, method, body, entity_type, created_at, attempts, status
		FROM mutation_queue
	`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	defer rows.Close()

	var mutations []Mutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("list mutations: %w", err)
		}
		mutations = append(mutations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}

	if mutations == nil {
		mutations = []Mutation{}
	}
	return mutations, nil
}

// UpdateMutationStatus sets the status of a mutation.
// Returns ErrNotFound if the ID does not exist.
func (s *Store) UpdateMutationStatus(ctx context.Context, id string, status MutationStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mutation_queue SET status = ? WHERE id = ?
	`, string(status), id)
	if err != nil {
		return fmt.Errorf("update mutation status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mutation status: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMutationFailure increments attempts and, once attempts reaches
// maxAttempts, transitions the mutation to failed-permanent in the same
// UPDATE so the counter and the status can never disagree after a crash.
// Otherwise the mutation returns to pending for the next replay cycle.
func (s *Store) RecordMutationFailure(ctx context.Context, id string, maxAttempts int) (Mutation, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN 'failed-permanent' ELSE 'pending' END
		WHERE id = ?
	`, maxAttempts, id)
	if err != nil {
		return Mutation{}, fmt.Errorf("record mutation failure: %w", err)
	}

	return s.GetMutation(ctx, id)
}

// RequeueMutation returns a failed-permanent mutation to pending with a
// fresh attempt budget. This is the manual-resolution path after the retry
// limit stopped automatic replay.
func (s *Store) RequeueMutation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE mutation_queue
		SET status = 'pending', attempts = 0
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("requeue mutation: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("requeue mutation: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMutation removes a mutation from the queue, typically on replay
// success. Deleting an absent ID is a no-op so a re-acknowledged success
// stays idempotent.
func (s *Store) DeleteMutation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM mutation_queue WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	return nil
}

// scanMutation reads one mutation row from a row scanner.
func scanMutation(row interface{ Scan(...any) error }) (Mutation, error) {
	var (
		m         Mutation
		body      string
		createdAt int64
		status    string
	)
	err := row.Scan(&m.Seq, &m.ID, &m.Endpoint, &m.Method, &body, &m.EntityType, &createdAt, &m.Attempts, &status)
	if err != nil {
		return Mutation{}, err
	}
	m.Body = json.RawMessage(body)
	m.CreatedAt = time.UnixMilli(createdAt)
	m.Status = MutationStatus(status)
	return m, nil
}

// repeatPlaceholder returns n copies of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// KeyPermissions is the kv key holding the current permission snapshot.
const KeyPermissions = "permissions:current"

// GetValue returns the kv value for a key, or ErrNotFound.
func (s *Store) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get value: %w", err)
	}
	return value, nil
}

// PutValue inserts or replaces the kv value for a key.
func (s *Store) PutValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("put value: %w", err)
	}
	return nil
}

// DeleteValue removes a kv key. Absent keys are a no-op.
func (s *Store) DeleteValue(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM kv WHERE key = ?
	`, key)
	if err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

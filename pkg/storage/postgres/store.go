// Package postgres provides PostgreSQL-backed storage for the session
// engine's activity records. It is used by multi-device deployments where
// the session state must survive restarts of any single host.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/TuPhung369/PasswordEpic-sub009/pkg/storage"
)

const activityTable = "activity_records"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements storage.Store using a single key-value table.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL store. The caller owns the *sql.DB and is
// responsible for running migrations (see pkg/database/migrate).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := psq.
		Select("value").
		From(activityTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", false, fmt.Errorf("building select: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("selecting record: %w", err)
	}
	return value, true, nil
}

// Set upserts the value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	query, args, err := psq.
		Insert(activityTable).
		Columns("key", "value", "updated_at").
		Values(key, value, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

// Remove deletes key. Deleting an absent key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	query, args, err := psq.
		Delete(activityTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ storage.Store = (*Store)(nil)

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx is a single unit of work. All repository methods run inside it.
type Tx struct {
	q           querier
	driver      string
	afterCommit []func()
}

// AfterCommit registers fn to run once the transaction has committed. It is
// discarded if the transaction rolls back or is retried.
func (t *Tx) AfterCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

func (t *Tx) runAfterCommit() {
	for _, fn := range t.afterCommit {
		fn()
	}
}

// Savepoint runs fn inside a savepoint. If fn fails, work done inside it is
// rolled back while the enclosing transaction stays usable.
func (t *Tx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if _, err := t.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint %s: %w", name, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := t.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint %s: %v (original error: %w)", name, rbErr, err)
		}
		return err
	}

	if _, err := t.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint %s: %w", name, err)
	}
	return nil
}

// now returns the current time truncated to microseconds, the resolution
// PostgreSQL stores.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// clampLimit applies a default to non-positive limits and caps the rest.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"bookaway/internal/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// repo implements ledger.Ledger on top of a querier.
type repo struct {
	q querier
}

var _ ledger.Store = (*DB)(nil)

// WithTx runs fn inside a single write transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ledger.Ledger) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&repo{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && db.logger != nil {
			db.logger.Error().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// View runs fn against the database without a transaction.
func (db *DB) View(ctx context.Context, fn func(ledger.Ledger) error) error {
	return fn(&repo{q: db.DB})
}

// Ledger returns a non-transactional ledger for direct use.
func (db *DB) Ledger() ledger.Ledger {
	return &repo{q: db.DB}
}

// inClause renders "?, ?, ?" for n ids and the matching args.
func inClause(ids []int64) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

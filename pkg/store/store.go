// Package store is the relational gateway: parent documents, golden routes
// and answers, knowledge graph tables, user memory and conversation ratings.
//
// All writes run inside transactions. Batch upserts use
// ON CONFLICT ... DO UPDATE with excluded values, so re-ingesting the same
// document is idempotent.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/balidesk/oracle/pkg/config"
	"github.com/balidesk/oracle/pkg/oerr"
)

// Store wraps a bounded Postgres connection pool.
type Store struct {
	db             *sql.DB
	acquireTimeout time.Duration
}

// New opens the pool and verifies connectivity.
func New(cfg config.DatabaseConfig) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.AcquireTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Connected to database", "max_conns", cfg.MaxConns, "min_conns", cfg.MinConns)

	return &Store{
		db:             db,
		acquireTimeout: cfg.AcquireTimeout,
	}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity, used by the validate command and health checks.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return s.mapErr("store.Ping", err)
	}
	return nil
}

// withTx runs fn inside a transaction with the pool acquire timeout applied
// to the Begin. Exceeding the timeout while every connection is busy fails
// fast as PoolExhausted.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	tx, err := s.db.BeginTx(acquireCtx, nil)
	cancel()
	if err != nil {
		return s.mapErr(op, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("Transaction rollback failed", "op", op, "error", rbErr)
		}
		return s.mapErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return s.mapErr(op, err)
	}
	return nil
}

// mapErr folds driver errors into the error taxonomy.
func (s *Store) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return oerr.E(oerr.KindNotFound, op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return oerr.E(oerr.KindPoolExhausted, op, fmt.Errorf("connection acquire timed out after %s: %w", s.acquireTimeout, err))
	case errors.Is(err, context.Canceled):
		return oerr.E(oerr.KindCancelled, op, err)
	default:
		return oerr.E(oerr.KindTransport, op, err)
	}
}

// isMissingColumn detects the "column does not exist" class of errors used
// by the quality-column fallback.
func isMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "column") && strings.Contains(msg, "does not exist")
}

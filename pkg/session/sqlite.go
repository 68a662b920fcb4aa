package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/balidesk/oracle/pkg/oerr"
)

// SQLiteStore persists sessions in a local SQLite file. Concurrency is
// handled by database-level locking, no Go mutex needed.
type SQLiteStore struct {
	db *sql.DB
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	`CREATE TABLE IF NOT EXISTS session_turns (
		session_id TEXT NOT NULL,
		sequence_num INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		model TEXT,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, sequence_num)
	)`,
}

// NewSQLiteStore opens (and creates if necessary) the session database at
// path. ":memory:" gives an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// SQLite serializes writes; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize session schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`, sessionID, userID, now, now)
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Create", err)
	}
	return s.Get(ctx, sessionID)
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at, updated_at FROM sessions WHERE id = ?`, sessionID).
		Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, oerr.E(oerr.KindNotFound, "session.Get", fmt.Errorf("session %s not found", sessionID))
	}
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Get", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, turn *Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}
	if exists == 0 {
		return oerr.E(oerr.KindNotFound, "session.AppendTurn", fmt.Errorf("session %s not found", sessionID))
	}

	var seq int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_turns WHERE session_id = ?`, sessionID).Scan(&seq); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}

	createdAt := turn.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_turns (session_id, sequence_num, role, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, seq, turn.Role, turn.Content, turn.Model, createdAt); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().UTC(), sessionID); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}

	if err := tx.Commit(); err != nil {
		return oerr.E(oerr.KindTransport, "session.AppendTurn", err)
	}
	return nil
}

func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]*Turn, error) {
	if n <= 0 {
		n = DefaultRecentTurns
	}
	// Subquery fetches the newest n, outer query restores chronology.
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, model, created_at FROM (
			SELECT sequence_num, role, content, model, created_at
			FROM session_turns WHERE session_id = ?
			ORDER BY sequence_num DESC LIMIT ?
		) sub ORDER BY sequence_num ASC`, sessionID, n)
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "session.Recent", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var model sql.NullString
		if err := rows.Scan(&t.Role, &t.Content, &model, &t.CreatedAt); err != nil {
			return nil, oerr.E(oerr.KindTransport, "session.Recent", err)
		}
		t.Model = model.String
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_turns WHERE session_id = ?`, sessionID); err != nil {
		return oerr.E(oerr.KindTransport, "session.Delete", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return oerr.E(oerr.KindTransport, "session.Delete", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
